// Package planner implements the Planner role of the MultiAgent pipeline:
// given a task description, it asks the LLM to decompose the work into 2-5
// SubTasks with dependency edges and validates the resulting dependency
// graph before handing it to the Coders.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy/agent"
)

// Planner is the Planner role.
type Planner struct{}

// New constructs a Planner.
func New() *Planner { return &Planner{} }

// Name identifies this role.
func (p *Planner) Name() string { return "planner" }

// planOutput is the JSON shape the LLM is instructed to emit.
type planOutput struct {
	SubTasks []struct {
		ID                  string   `json:"id"`
		Title               string   `json:"title"`
		Description         string   `json:"description"`
		AffectedFiles       []string `json:"affected_files"`
		EstimatedComplexity int      `json:"estimated_complexity"`
		DependsOn           []string `json:"depends_on"`
	} `json:"subtasks"`
	StrategyNote string `json:"strategy_note"`
}

// Run asks the LLM to produce a TaskPlan and validates it is acyclic before
// returning it as AgentResult.Output.
func (p *Planner) Run(ctx context.Context, deps agent.Deps, req agent.Request) domain.AgentResult {
	prompt := buildPrompt(req)
	resp, err := deps.LLM.Generate(ctx, &llm.Request{
		Model:       req.Model,
		Temperature: 0.4,
		MaxTokens:   2000,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: plannerSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		deps.Logger.Error(ctx, "planner: llm call failed", "error", err)
		return domain.AgentResult{AgentName: p.Name(), Errors: []string{err.Error()}}
	}

	plan, err := parsePlan(resp.Text)
	if err != nil {
		deps.Logger.Error(ctx, "planner: failed to parse plan", "error", err)
		return domain.AgentResult{
			AgentName: p.Name(),
			Tokens:    resp.TokensUsed,
			Cost:      resp.Cost,
			Errors:    []string{err.Error()},
		}
	}
	if err := plan.ValidateAcyclic(); err != nil {
		deps.Logger.Error(ctx, "planner: plan failed acyclic validation", "error", err)
		return domain.AgentResult{
			AgentName: p.Name(),
			Tokens:    resp.TokensUsed,
			Cost:      resp.Cost,
			Errors:    []string{err.Error()},
		}
	}

	return domain.AgentResult{
		AgentName: p.Name(),
		Success:   true,
		Tokens:    resp.TokensUsed,
		Cost:      resp.Cost,
		Output:    plan,
	}
}

func buildPrompt(req agent.Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n%s\n\n", req.Task.Title, req.Task.Description)
	if len(req.Context.Files) > 0 {
		sb.WriteString("Relevant files:\n")
		for _, f := range req.Context.Files {
			fmt.Fprintf(&sb, "- %s\n", f.Path)
		}
	}
	sb.WriteString("\nDecompose this task into 2-5 subtasks with dependencies, as JSON.")
	return sb.String()
}

func parsePlan(raw string) (domain.TaskPlan, error) {
	jsonStart := strings.Index(raw, "{")
	jsonEnd := strings.LastIndex(raw, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return domain.TaskPlan{}, fmt.Errorf("planner: no JSON object found in response")
	}
	var out planOutput
	if err := json.Unmarshal([]byte(raw[jsonStart:jsonEnd+1]), &out); err != nil {
		return domain.TaskPlan{}, fmt.Errorf("planner: invalid plan JSON: %w", err)
	}
	if len(out.SubTasks) < 2 || len(out.SubTasks) > 5 {
		return domain.TaskPlan{}, fmt.Errorf("planner: expected 2-5 subtasks, got %d", len(out.SubTasks))
	}
	plan := domain.TaskPlan{StrategyNote: out.StrategyNote}
	for _, st := range out.SubTasks {
		plan.SubTasks = append(plan.SubTasks, domain.SubTask{
			ID:                  st.ID,
			Title:               st.Title,
			Description:         st.Description,
			AffectedFiles:       st.AffectedFiles,
			EstimatedComplexity: st.EstimatedComplexity,
			DependsOn:           st.DependsOn,
		})
	}
	return plan, nil
}

const plannerSystemPrompt = `You are a senior engineer decomposing a coding task into independent, parallelizable subtasks. Respond with a single JSON object: {"subtasks": [{"id", "title", "description", "affected_files", "estimated_complexity", "depends_on"}], "strategy_note": "..."}.`
