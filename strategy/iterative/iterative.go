// Package iterative implements the Iterative strategy: a loop of LLM
// calls bounded by both a maximum iteration count and a
// wall-clock budget, feeding the previous validation failure back into the
// prompt so each pass can correct the last one's mistakes.
package iterative

import (
	"context"
	"errors"
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

// DefaultMaxIterations bounds the loop regardless of the wall-clock budget.
const DefaultMaxIterations = 3

// DefaultTimeout bounds the loop regardless of iteration count.
const DefaultTimeout = 60 * time.Second

// Config configures an Iterative strategy instance.
type Config struct {
	MaxIterations int
	Timeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Strategy is the Iterative strategy.
type Strategy struct {
	llmClient llm.Client
	model     string
	cfg       Config
	log       telemetry.Logger
}

// New constructs an Iterative strategy bound to the given LLM client and
// model name.
func New(client llm.Client, model string, cfg Config, logger telemetry.Logger) *Strategy {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Strategy{llmClient: client, model: model, cfg: cfg.withDefaults(), log: logger}
}

// Name identifies this strategy.
func (s *Strategy) Name() string { return "Iterative" }

// SupportsComplexity reports the complexity tier this strategy targets.
func (s *Strategy) SupportsComplexity() domain.Complexity { return domain.ComplexityMedium }

// Execute loops LLM calls until validation succeeds, the iteration cap is
// hit, the wall-clock budget elapses, or ctx is cancelled. It never returns
// a Go error; every failure mode is carried in the returned
// ExecutionResult, accumulating tokens and cost across every iteration
// regardless of whether that iteration succeeded.
func (s *Strategy) Execute(ctx context.Context, task *domain.CodingTask, execCtx strategy.TaskExecutionContext) strategy.ExecutionResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		totalTokens   int
		totalCost     float64
		lastErrors    []string
		lastChanges   []domain.CodeChange
		iterationsRun int
	)

	for iter := 1; iter <= s.cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			reason := "iterative: cancelled"
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				reason = "iterative: timed out"
			}
			return strategy.ExecutionResult{
				Success:        false,
				Changes:        lastChanges,
				TotalTokens:    totalTokens,
				TotalCost:      totalCost,
				Duration:       time.Since(start),
				IterationsUsed: iterationsRun,
				Errors:         append(lastErrors, reason),
			}
		default:
		}

		iterationsRun = iter
		resp, err := s.llmClient.Generate(ctx, &llm.Request{
			Model:       s.model,
			Temperature: 0.3,
			MaxTokens:   4000,
			Messages:    buildMessages(task, execCtx, lastErrors, iter),
		})
		if err != nil {
			s.log.Error(ctx, "iterative: llm call failed", "task_id", task.ID, "iteration", iter, "error", err)
			lastErrors = []string{err.Error()}
			continue
		}
		totalTokens += resp.TokensUsed
		totalCost += resp.Cost

		changes := changeparser.Parse(resp.Text, s.log)
		if len(changes) == 0 {
			lastErrors = []string{"iterative: no file changes parsed from response"}
			continue
		}
		lastChanges = changes

		result := validator.Validate(changes)
		if result.Success {
			return strategy.ExecutionResult{
				Success:        true,
				Changes:        changes,
				TotalTokens:    totalTokens,
				TotalCost:      totalCost,
				Duration:       time.Since(start),
				IterationsUsed: iterationsRun,
			}
		}
		lastErrors = result.Errors
	}

	errs := append([]string{"iterative: max iterations reached"}, lastErrors...)
	return strategy.ExecutionResult{
		Success:        false,
		Changes:        lastChanges,
		TotalTokens:    totalTokens,
		TotalCost:      totalCost,
		Duration:       time.Since(start),
		IterationsUsed: iterationsRun,
		Errors:         errs,
	}
}

func buildMessages(task *domain.CodingTask, execCtx strategy.TaskExecutionContext, lastErrors []string, iteration int) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n%s\n\n", task.Title, task.Description)
	for _, f := range execCtx.Files {
		fmt.Fprintf(&sb, "FILE: %s\n```%s\n%s\n```\n\n", f.Path, f.Language, f.Content)
	}
	if iteration > 1 && len(lastErrors) > 0 {
		sb.WriteString("The previous attempt failed validation with these errors:\n")
		for _, e := range lastErrors {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
		sb.WriteString("\nFix these issues in your next attempt.\n\n")
	}
	sb.WriteString("Implement this task. Respond using FILE: <path> directives followed by fenced code blocks with the complete new file content.")
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

const systemPrompt = `You are a software engineer iterating on a coding task until it passes validation. Output only the files you change.`
