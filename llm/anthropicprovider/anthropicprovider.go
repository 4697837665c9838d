// Package anthropicprovider adapts the Anthropic Claude Messages API to
// the orchestration core's llm.Client contract: translate the request into
// an SDK call, classify rate-limit responses, and compute cost from a
// per-token rate table since the SDK does not return dollar cost directly.
package anthropicprovider

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/llm"
)

// MessagesClient is the subset of *sdk.MessageService this adapter calls,
// letting tests substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements llm.Client on top of the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	// costPerInputToken and costPerOutputToken are USD per token, used since
	// the SDK reports only token usage, not a dollar figure.
	costPerInputToken  float64
	costPerOutputToken float64
}

// Options configures a Client.
type Options struct {
	DefaultModel       string
	CostPerInputToken  float64
	CostPerOutputToken float64
}

// New constructs a Client from an Anthropic Messages client and Options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{
		msg:                msg,
		defaultModel:       opts.DefaultModel,
		costPerInputToken:  opts.CostPerInputToken,
		costPerOutputToken: opts.CostPerOutputToken,
	}, nil
}

// NewFromAPIKey builds a Client using the default Anthropic HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel, CostPerInputToken: 0.000003, CostPerOutputToken: 0.000015})
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	var system []sdk.TextBlockParam
	var msgs []sdk.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case llm.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isRateLimited(err) {
			return nil, orcherrors.Wrap(orcherrors.KindServiceUnavailable, "anthropic quota exhausted", err)
		}
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "anthropic messages.new failed", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	inTokens := int(msg.Usage.InputTokens)
	outTokens := int(msg.Usage.OutputTokens)
	cost := float64(inTokens)*c.costPerInputToken + float64(outTokens)*c.costPerOutputToken

	return &llm.Response{
		Text:          text,
		TokensUsed:    inTokens + outTokens,
		Cost:          cost,
		ResolvedModel: string(msg.Model),
	}, nil
}

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
