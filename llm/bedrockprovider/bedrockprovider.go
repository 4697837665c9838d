// Package bedrockprovider adapts the AWS Bedrock Converse API to the
// orchestration core's llm.Client contract: a RuntimeClient seam narrow
// enough to fake in tests, system messages split from conversational ones,
// and Converse's text content blocks translated back into a single-shot
// llm.Response. Tool use and streaming are out of scope since the Client
// contract is text-only and single-shot.
package bedrockprovider

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/llm"
)

// RuntimeClient is the subset of *bedrockruntime.Client this adapter calls.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures a Client.
type Options struct {
	Runtime            RuntimeClient
	DefaultModel       string
	CostPerInputToken  float64
	CostPerOutputToken float64
}

// Client implements llm.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime            RuntimeClient
	defaultModel       string
	costPerInputToken  float64
	costPerOutputToken float64
}

// New constructs a Client from a Bedrock runtime client and Options.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{
		runtime:            opts.Runtime,
		defaultModel:       opts.DefaultModel,
		costPerInputToken:  opts.CostPerInputToken,
		costPerOutputToken: opts.CostPerOutputToken,
	}, nil
}

// NewFromRuntime is a convenience constructor taking a concrete
// *bedrockruntime.Client, for callers that already built one from an AWS
// config.
func NewFromRuntime(rt *bedrockruntime.Client, defaultModel string) (*Client, error) {
	return New(Options{Runtime: rt, DefaultModel: defaultModel, CostPerInputToken: 0.000003, CostPerOutputToken: 0.000015})
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

	var system []brtypes.SystemContentBlock
	var messages []brtypes.Message
	for _, m := range req.Messages {
		block := &brtypes.ContentBlockMemberText{Value: m.Content}
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case llm.RoleAssistant:
			messages = append(messages, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: []brtypes.ContentBlock{block}})
		default:
			messages = append(messages, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{block}})
		}
	}

	inferenceCfg := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		maxTok := int32(req.MaxTokens)
		inferenceCfg.MaxTokens = &maxTok
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		inferenceCfg.Temperature = &temp
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         &modelID,
		Messages:        messages,
		System:          system,
		InferenceConfig: inferenceCfg,
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "bedrock converse failed", err)
	}

	var text string
	if msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msgOut.Value.Content {
			if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += t.Value
			}
		}
	}

	inTokens, outTokens := 0, 0
	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			inTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			outTokens = int(*out.Usage.OutputTokens)
		}
	}
	cost := float64(inTokens)*c.costPerInputToken + float64(outTokens)*c.costPerOutputToken

	return &llm.Response{
		Text:          text,
		TokensUsed:    inTokens + outTokens,
		Cost:          cost,
		ResolvedModel: modelID,
	}, nil
}
