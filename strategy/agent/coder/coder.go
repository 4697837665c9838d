// Package coder implements the Coder role of the MultiAgent pipeline: one
// Coder call implements exactly one SubTask produced by the Planner,
// emitting file changes through the shared FILE:/fence grammar every
// strategy parses with changeparser.
package coder

import (
	"context"
	"fmt"
	"strings"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy/agent"
	"github.com/coderun/orchestrator/strategy/changeparser"
)

// Coder is the Coder role.
type Coder struct{}

// New constructs a Coder.
func New() *Coder { return &Coder{} }

// Name identifies this role.
func (c *Coder) Name() string { return "coder" }

// Run asks the LLM to implement req.SubTask and parses the resulting file
// changes. req.SubTask must be set; a nil SubTask is a caller error and
// fails fast without calling the LLM.
func (c *Coder) Run(ctx context.Context, deps agent.Deps, req agent.Request) domain.AgentResult {
	if req.SubTask == nil {
		return domain.AgentResult{AgentName: c.Name(), Errors: []string{"coder: subtask is required"}}
	}

	resp, err := deps.LLM.Generate(ctx, &llm.Request{
		Model:       req.Model,
		Temperature: 0.3,
		MaxTokens:   4000,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: coderSystemPrompt},
			{Role: llm.RoleUser, Content: buildPrompt(req)},
		},
	})
	if err != nil {
		deps.Logger.Error(ctx, "coder: llm call failed", "subtask", req.SubTask.ID, "error", err)
		return domain.AgentResult{AgentName: c.Name(), Errors: []string{err.Error()}}
	}

	changes := changeparser.Parse(resp.Text, deps.Logger)
	if len(changes) == 0 {
		deps.Logger.Warn(ctx, "coder: no parseable file changes in response", "subtask", req.SubTask.ID)
		return domain.AgentResult{
			AgentName: c.Name(),
			Tokens:    resp.TokensUsed,
			Cost:      resp.Cost,
			Errors:    []string{"coder: no file changes parsed from subtask " + req.SubTask.ID},
		}
	}

	return domain.AgentResult{
		AgentName: c.Name(),
		Success:   true,
		Changes:   changes,
		Tokens:    resp.TokensUsed,
		Cost:      resp.Cost,
	}
}

func buildPrompt(req agent.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Subtask: %s\n%s\n\n", req.SubTask.Title, req.SubTask.Description)
	if len(req.SubTask.AffectedFiles) > 0 {
		sb.WriteString("Affected files:\n")
		for _, f := range req.SubTask.AffectedFiles {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	for _, f := range req.Context.Files {
		if !contains(req.SubTask.AffectedFiles, f.Path) {
			continue
		}
		fmt.Fprintf(&sb, "\nCurrent content of %s:\n```%s\n%s\n```\n", f.Path, f.Language, f.Content)
	}
	sb.WriteString("\nImplement this subtask. Respond using FILE: <path> directives followed by fenced code blocks.")
	return sb.String()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

const coderSystemPrompt = `You are a software engineer implementing one subtask of a larger plan. Output only the files you change, each preceded by "FILE: <path>" and followed by a fenced code block containing the complete new file content.`
