// Package mock provides a deterministic, dependency-free llm.Client used by
// tests and local runs: a configurable responder that never leaves the
// process.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/coderun/orchestrator/llm"
)

// Client is an in-memory llm.Client. Responder, when set, computes the
// response text for a request; otherwise a canned single-file change is
// returned so strategy tests have something to parse.
type Client struct {
	Responder func(req *llm.Request) (string, error)
	calls     int64
}

// New constructs a mock Client with the default canned responder.
func New() *Client {
	return &Client{}
}

// Calls returns the number of times Generate has been invoked.
func (c *Client) Calls() int64 { return atomic.LoadInt64(&c.calls) }

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	atomic.AddInt64(&c.calls, 1)
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	text, err := c.respond(req)
	if err != nil {
		return nil, err
	}
	tokens := len(text) / 4
	if tokens == 0 {
		tokens = 1
	}
	return &llm.Response{
		Text:          text,
		TokensUsed:    tokens,
		Cost:          float64(tokens) * 0.000002,
		ResolvedModel: req.Model,
	}, nil
}

func (c *Client) respond(req *llm.Request) (string, error) {
	if c.Responder != nil {
		return c.Responder(req)
	}
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	return fmt.Sprintf("FILE: main.go\n```go\npackage main\n\n// generated for: %s\nfunc main() {}\n```\n", last), nil
}
