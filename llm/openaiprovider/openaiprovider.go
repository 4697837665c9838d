// Package openaiprovider adapts the OpenAI Chat Completions API to the
// orchestration core's llm.Client contract: build a ChatCompletionNewParams
// request, delegate to the chat completions service, and translate token
// usage back into a single-shot llm.Response.
package openaiprovider

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/llm"
)

// ChatClient is the subset of openai.Client used by this adapter, letting
// tests substitute a fake.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures a Client.
type Options struct {
	Chat               ChatClient
	DefaultModel       string
	CostPerInputToken  float64
	CostPerOutputToken float64
}

// Client implements llm.Client on top of the OpenAI Chat Completions API.
type Client struct {
	chat               ChatClient
	defaultModel       string
	costPerInputToken  float64
	costPerOutputToken float64
}

// New constructs a Client from an OpenAI chat completions client and Options.
func New(opts Options) (*Client, error) {
	if opts.Chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{
		chat:               opts.Chat,
		defaultModel:       modelID,
		costPerInputToken:  opts.CostPerInputToken,
		costPerOutputToken: opts.CostPerOutputToken,
	}, nil
}

// NewFromAPIKey builds a Client using the default OpenAI HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(Options{
		Chat:               &oc.Chat.Completions,
		DefaultModel:       defaultModel,
		CostPerInputToken:  0.0000025,
		CostPerOutputToken: 0.00001,
	})
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return nil, orcherrors.Wrap(orcherrors.KindServiceUnavailable, "openai quota exhausted", err)
		}
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "openai chat completion failed", err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	inTokens := int(resp.Usage.PromptTokens)
	outTokens := int(resp.Usage.CompletionTokens)
	cost := float64(inTokens)*c.costPerInputToken + float64(outTokens)*c.costPerOutputToken

	return &llm.Response{
		Text:          text,
		TokensUsed:    inTokens + outTokens,
		Cost:          cost,
		ResolvedModel: resp.Model,
	}, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
