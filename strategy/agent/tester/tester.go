// Package tester implements the Tester role of the MultiAgent pipeline:
// the last pipeline stage, run after the Validator gate passes. It asks
// the LLM to assess whether the merged changes are likely to pass tests
// and to propose test code, but a Tester failure is non-fatal to the
// overall run — the multiagent strategy logs and continues.
package tester

import (
	"context"
	"fmt"
	"strings"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy/agent"
	"github.com/coderun/orchestrator/strategy/changeparser"
)

// Tester is the Tester role.
type Tester struct{}

// New constructs a Tester.
func New() *Tester { return &Tester{} }

// Name identifies this role.
func (t *Tester) Name() string { return "tester" }

// Run asks the LLM to produce or extend tests for req.MergedChanges. Any
// additional test files it proposes are parsed via changeparser and
// returned as AgentResult.Changes so the MultiAgent strategy can fold them
// into the final change set alongside the Coder output.
func (t *Tester) Run(ctx context.Context, deps agent.Deps, req agent.Request) domain.AgentResult {
	resp, err := deps.LLM.Generate(ctx, &llm.Request{
		Model:       req.Model,
		Temperature: 0.2,
		MaxTokens:   2500,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: testerSystemPrompt},
			{Role: llm.RoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		deps.Logger.Warn(ctx, "tester: llm call failed", "error", err)
		return domain.AgentResult{AgentName: t.Name(), Errors: []string{err.Error()}}
	}

	changes := changeparser.Parse(resp.Text, deps.Logger)
	return domain.AgentResult{
		AgentName: t.Name(),
		Success:   true,
		Changes:   changes,
		Tokens:    resp.TokensUsed,
		Cost:      resp.Cost,
		Output:    extractVerdict(resp.Text),
	}
}

func buildPrompt(req agent.Request) string {
	var sb strings.Builder
	sb.WriteString("Write or extend tests covering the following merged changes:\n\n")
	for _, c := range req.MergedChanges {
		fmt.Fprintf(&sb, "FILE: %s\n```%s\n%s\n```\n\n", c.FilePath, c.Language, c.Content)
	}
	sb.WriteString("Respond with a one-line PASS/FAIL verdict followed by any new or updated test files as FILE: directives with fenced code blocks.")
	return sb.String()
}

// extractVerdict reduces the response to a verdict for AgentResult.Output:
// "FAIL" if FAIL appears anywhere, else "PASS" if PASS appears, else
// "UNKNOWN".
func extractVerdict(raw string) string {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "FAIL"):
		return "FAIL"
	case strings.Contains(upper, "PASS"):
		return "PASS"
	default:
		return "UNKNOWN"
	}
}

const testerSystemPrompt = `You are a test engineer. Assess whether the merged changes are adequately covered by tests, writing new or updated test files where coverage is missing. State PASS or FAIL up front based on whether you believe the changes are correct.`
