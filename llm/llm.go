// Package llm defines the provider-agnostic contract between the
// orchestration core and an LLM provider. Concrete provider adapters
// (anthropicprovider, openaiprovider, bedrockprovider, mock) each
// implement Client.
//
// The core only ever sends and receives text, so Message carries a plain
// Content string rather than a typed part union; providers with multimodal
// APIs translate down to text.
package llm

import (
	"context"

	"github.com/coderun/orchestrator/domain/orcherrors"
)

// Role is the role of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the conversation sent to the provider.
type Message struct {
	Role    Role
	Content string
}

// Request carries everything a provider needs to produce a completion.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is what every provider returns for a single-shot completion.
// Streaming is explicitly out of scope for the core.
type Response struct {
	Text          string
	TokensUsed    int
	Cost          float64
	ResolvedModel string
}

// Client is the contract every LLM provider adapter implements.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Typed failure kinds a Client may return, wrapped in *orcherrors.Error so
// callers can branch with orcherrors.KindOf.
var (
	ErrProviderUnavailable = orcherrors.New(orcherrors.KindServiceUnavailable, "llm provider unavailable")
	ErrQuotaExhausted      = orcherrors.New(orcherrors.KindServiceUnavailable, "llm provider quota exhausted")
	ErrInvalidRequest      = orcherrors.New(orcherrors.KindValidation, "invalid llm request")
)

// ValidateRequest applies the structural checks every adapter should run
// before making an outbound call: a model name, at least one message, and a
// positive token budget.
func ValidateRequest(req *Request) error {
	if req == nil {
		return orcherrors.Validation("request is nil")
	}
	if req.Model == "" {
		return orcherrors.Validation("model is required")
	}
	if len(req.Messages) == 0 {
		return orcherrors.Validation("at least one message is required")
	}
	if req.MaxTokens <= 0 {
		return orcherrors.Validation("max tokens must be positive")
	}
	return nil
}
