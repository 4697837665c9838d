// Package singleshot implements the SingleShot strategy: one LLM call,
// parsed through the shared FILE:/fence grammar, validated, done. No retries, no iteration — SingleShot is the cheapest strategy and
// is only selected for Simple-complexity tasks.
package singleshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy"
	"github.com/coderun/orchestrator/strategy/changeparser"
	"github.com/coderun/orchestrator/telemetry"
	"github.com/coderun/orchestrator/validator"
)

// Strategy is the SingleShot strategy.
type Strategy struct {
	llmClient llm.Client
	model     string
	log       telemetry.Logger
}

// New constructs a SingleShot strategy bound to the given LLM client and
// model name.
func New(client llm.Client, model string, logger telemetry.Logger) *Strategy {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Strategy{llmClient: client, model: model, log: logger}
}

// Name identifies this strategy.
func (s *Strategy) Name() string { return "SingleShot" }

// SupportsComplexity reports the complexity tier this strategy targets.
func (s *Strategy) SupportsComplexity() domain.Complexity { return domain.ComplexitySimple }

// Execute performs one LLM exchange, parses the result, and validates it.
// It never returns a Go error; every failure mode is carried in the
// returned ExecutionResult.
func (s *Strategy) Execute(ctx context.Context, task *domain.CodingTask, execCtx strategy.TaskExecutionContext) strategy.ExecutionResult {
	start := time.Now()

	resp, err := s.llmClient.Generate(ctx, &llm.Request{
		Model:       s.model,
		Temperature: 0.3,
		MaxTokens:   4000,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildPrompt(task, execCtx)},
		},
	})
	if err != nil {
		s.log.Error(ctx, "singleshot: llm call failed", "task_id", task.ID, "error", err)
		return strategy.ExecutionResult{
			Success:  false,
			Duration: time.Since(start),
			Errors:   []string{err.Error()},
		}
	}

	changes := changeparser.Parse(resp.Text, s.log)
	if len(changes) == 0 {
		return strategy.ExecutionResult{
			Success:     false,
			TotalTokens: resp.TokensUsed,
			TotalCost:   resp.Cost,
			Duration:    time.Since(start),
			Errors:      []string{"singleshot: no file changes parsed from response"},
		}
	}

	result := validator.Validate(changes)
	return strategy.ExecutionResult{
		Success:        result.Success,
		Changes:        changes,
		TotalTokens:    resp.TokensUsed,
		TotalCost:      resp.Cost,
		Duration:       time.Since(start),
		IterationsUsed: 1,
		Errors:         result.Errors,
	}
}

func buildPrompt(task *domain.CodingTask, execCtx strategy.TaskExecutionContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n%s\n\n", task.Title, task.Description)
	for _, f := range execCtx.Files {
		fmt.Fprintf(&sb, "FILE: %s\n```%s\n%s\n```\n\n", f.Path, f.Language, f.Content)
	}
	sb.WriteString("Implement this task. Respond using FILE: <path> directives followed by fenced code blocks with the complete new file content.")
	return sb.String()
}

const systemPrompt = `You are a software engineer making a single, complete pass at a coding task. Output only the files you change.`
