// Package reviewer implements the Reviewer role of the MultiAgent
// pipeline: after all Coders finish and their changes are merged, the
// Reviewer asks the LLM to judge the merged diff and returns a structured
// verdict the pipeline gates on before the Validator runs.
package reviewer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy/agent"
)

// Severity classifies how serious a review issue is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Issue is one problem the Reviewer found in the merged changes.
type Issue struct {
	FilePath string   `json:"file_path"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the Reviewer's structured verdict, carried in
// domain.AgentResult.Output.
type Result struct {
	IsApproved bool    `json:"is_approved"`
	Issues     []Issue `json:"issues"`
}

// Reviewer is the Reviewer role.
type Reviewer struct{}

// New constructs a Reviewer.
func New() *Reviewer { return &Reviewer{} }

// Name identifies this role.
func (r *Reviewer) Name() string { return "reviewer" }

// Run asks the LLM to review req.MergedChanges and returns a Result. A
// Reviewer that rejects the changes is still Success: true at the
// AgentResult level — rejection is a business outcome carried in Output,
// not a role failure; only an unusable LLM response or a malformed verdict
// sets Success: false.
func (r *Reviewer) Run(ctx context.Context, deps agent.Deps, req agent.Request) domain.AgentResult {
	resp, err := deps.LLM.Generate(ctx, &llm.Request{
		Model:       req.Model,
		Temperature: 0.2,
		MaxTokens:   1500,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: reviewerSystemPrompt},
			{Role: llm.RoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		deps.Logger.Error(ctx, "reviewer: llm call failed", "error", err)
		return domain.AgentResult{AgentName: r.Name(), Errors: []string{err.Error()}}
	}

	result, err := parseResult(resp.Text)
	if err != nil {
		deps.Logger.Error(ctx, "reviewer: failed to parse verdict", "error", err)
		return domain.AgentResult{
			AgentName: r.Name(),
			Tokens:    resp.TokensUsed,
			Cost:      resp.Cost,
			Errors:    []string{err.Error()},
		}
	}

	if !result.IsApproved {
		deps.Logger.Warn(ctx, "reviewer: changes rejected", "issue_count", len(result.Issues))
	}

	return domain.AgentResult{
		AgentName: r.Name(),
		Success:   true,
		Tokens:    resp.TokensUsed,
		Cost:      resp.Cost,
		Output:    result,
	}
}

func buildPrompt(req agent.Request) string {
	var sb strings.Builder
	sb.WriteString("Review the following merged changes for correctness and quality:\n\n")
	for _, c := range req.MergedChanges {
		fmt.Fprintf(&sb, "FILE: %s\n```%s\n%s\n```\n\n", c.FilePath, c.Language, c.Content)
	}
	sb.WriteString("Respond with JSON: {\"is_approved\": bool, \"issues\": [{\"file_path\", \"severity\", \"message\"}]}.")
	return sb.String()
}

func parseResult(raw string) (Result, error) {
	jsonStart := strings.Index(raw, "{")
	jsonEnd := strings.LastIndex(raw, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return Result{}, fmt.Errorf("reviewer: no JSON object found in response")
	}
	var result Result
	if err := json.Unmarshal([]byte(raw[jsonStart:jsonEnd+1]), &result); err != nil {
		return Result{}, fmt.Errorf("reviewer: invalid verdict JSON: %w", err)
	}
	return result, nil
}

const reviewerSystemPrompt = `You are a meticulous code reviewer. Evaluate the merged changes for bugs, missed edge cases, and style violations. Be strict: only approve changes you would merge without further revision.`
