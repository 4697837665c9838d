// Package multiagent implements the MultiAgent strategy: Planner
// decomposes the task into subtasks, Coders implement them in
// dependency-ordered waves bounded by a configurable concurrency limit,
// changes are merged last-write-wins per file path, then Reviewer and
// Validator gate the result before a non-fatal Tester pass.
package multiagent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy"
	"github.com/coderun/orchestrator/strategy/agent"
	"github.com/coderun/orchestrator/strategy/agent/coder"
	"github.com/coderun/orchestrator/strategy/agent/planner"
	"github.com/coderun/orchestrator/strategy/agent/reviewer"
	"github.com/coderun/orchestrator/strategy/agent/tester"
	"github.com/coderun/orchestrator/telemetry"
	"github.com/coderun/orchestrator/validator"
)

// DefaultMaxParallelCoders bounds how many Coder calls run concurrently
// within one wave.
const DefaultMaxParallelCoders = 3

// Config configures a MultiAgent strategy instance.
type Config struct {
	MaxParallelCoders int
}

func (c Config) withDefaults() Config {
	if c.MaxParallelCoders <= 0 {
		c.MaxParallelCoders = DefaultMaxParallelCoders
	}
	return c
}

// Strategy is the MultiAgent strategy.
type Strategy struct {
	llmClient llm.Client
	model     string
	cfg       Config
	log       telemetry.Logger
	tracer    telemetry.Tracer

	planner  *planner.Planner
	coder    *coder.Coder
	reviewer *reviewer.Reviewer
	tester   *tester.Tester
}

// New constructs a MultiAgent strategy bound to the given LLM client and
// model name.
func New(client llm.Client, model string, cfg Config, logger telemetry.Logger, tracer telemetry.Tracer) *Strategy {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Strategy{
		llmClient: client,
		model:     model,
		cfg:       cfg.withDefaults(),
		log:       logger,
		tracer:    tracer,
		planner:   planner.New(),
		coder:     coder.New(),
		reviewer:  reviewer.New(),
		tester:    tester.New(),
	}
}

// Name identifies this strategy.
func (s *Strategy) Name() string { return "MultiAgent" }

// SupportsComplexity reports the complexity tier this strategy targets.
// MultiAgent is also used for Epic-complexity tasks.
func (s *Strategy) SupportsComplexity() domain.Complexity { return domain.ComplexityComplex }

func (s *Strategy) deps() agent.Deps {
	return agent.Deps{LLM: s.llmClient, Logger: s.log, Tracer: s.tracer}
}

// Execute runs the full Planner -> Coder[] -> Reviewer -> Validator ->
// Tester pipeline. It never returns a Go error; every failure mode is
// carried in the returned ExecutionResult. Tokens and cost accumulate
// across every agent call, including failed ones.
func (s *Strategy) Execute(ctx context.Context, task *domain.CodingTask, execCtx strategy.TaskExecutionContext) strategy.ExecutionResult {
	start := time.Now()
	var totalTokens int
	var totalCost float64
	var allErrors []string

	if ctx.Err() != nil {
		return cancelled(start)
	}

	planReq := agent.Request{Task: task, Context: execCtx, Model: s.model}
	planResult := agent.RunTraced(ctx, s.planner, s.deps(), planReq)
	totalTokens += planResult.Tokens
	totalCost += planResult.Cost
	if !planResult.Success {
		return strategy.ExecutionResult{
			Success:     false,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      append([]string{"multiagent: planner failed"}, planResult.Errors...),
		}
	}
	plan, ok := planResult.Output.(domain.TaskPlan)
	if !ok {
		return strategy.ExecutionResult{
			Success:     false,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      []string{"multiagent: planner produced no usable plan"},
		}
	}

	if ctx.Err() != nil {
		return cancelled(start)
	}

	merged, coderTokens, coderCost, coderErrors, cancelledDuringCoding := s.runCoders(ctx, task, execCtx, plan)
	totalTokens += coderTokens
	totalCost += coderCost
	allErrors = append(allErrors, coderErrors...)
	if cancelledDuringCoding {
		return strategy.ExecutionResult{
			Success:     false,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      []string{"cancelled"},
		}
	}
	if len(merged) == 0 {
		return strategy.ExecutionResult{
			Success:     false,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      append([]string{"multiagent: no coder produced file changes"}, allErrors...),
		}
	}

	reviewReq := agent.Request{Task: task, Context: execCtx, Plan: &plan, MergedChanges: merged, Model: s.model}
	reviewResult := agent.RunTraced(ctx, s.reviewer, s.deps(), reviewReq)
	totalTokens += reviewResult.Tokens
	totalCost += reviewResult.Cost
	if !reviewResult.Success {
		return strategy.ExecutionResult{
			Success:     false,
			Changes:     merged,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      append(append([]string{"multiagent: reviewer failed"}, reviewResult.Errors...), allErrors...),
		}
	}
	if rr, ok := reviewResult.Output.(reviewer.Result); ok && !rr.IsApproved {
		for _, issue := range rr.Issues {
			allErrors = append(allErrors, fmt.Sprintf("reviewer: [%s] %s: %s", issue.Severity, issue.FilePath, issue.Message))
		}
		return strategy.ExecutionResult{
			Success:     false,
			Changes:     merged,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      allErrors,
		}
	}

	validation := validator.Validate(merged)
	if !validation.Success {
		return strategy.ExecutionResult{
			Success:     false,
			Changes:     merged,
			TotalTokens: totalTokens,
			TotalCost:   totalCost,
			Duration:    time.Since(start),
			Errors:      append(validation.Errors, allErrors...),
		}
	}

	if ctx.Err() != nil {
		return cancelled(start)
	}

	testReq := agent.Request{Task: task, Context: execCtx, Plan: &plan, MergedChanges: merged, Model: s.model}
	testResult := agent.RunTraced(ctx, s.tester, s.deps(), testReq)
	totalTokens += testResult.Tokens
	totalCost += testResult.Cost
	if !testResult.Success {
		// Tester failure is non-fatal: log and continue with the changes
		// already validated by the Reviewer and Validator gates.
		s.log.Warn(ctx, "multiagent: tester step failed, continuing", "task_id", task.ID, "errors", testResult.Errors)
	} else if len(testResult.Changes) > 0 {
		merged = mergeChanges(merged, testResult.Changes, s.log)
	}

	return strategy.ExecutionResult{
		Success:     true,
		Changes:     merged,
		TotalTokens: totalTokens,
		TotalCost:   totalCost,
		Duration:    time.Since(start),
	}
}

// runCoders dispatches Coder calls in dependency-ordered waves, each wave
// bounded by cfg.MaxParallelCoders concurrent calls, and merges every
// wave's output last-write-wins per file path.
func (s *Strategy) runCoders(ctx context.Context, task *domain.CodingTask, execCtx strategy.TaskExecutionContext, plan domain.TaskPlan) (merged []domain.CodeChange, tokens int, cost float64, errs []string, cancelled bool) {
	waves := buildWaves(plan.SubTasks)
	mergedByPath := map[string]domain.CodeChange{}

	for _, wave := range waves {
		if ctx.Err() != nil {
			return toSlice(mergedByPath), tokens, cost, errs, true
		}

		results := s.runWave(ctx, task, execCtx, wave)
		for _, r := range results {
			tokens += r.Tokens
			cost += r.Cost
			if !r.Success {
				errs = append(errs, r.Errors...)
				continue
			}
			for _, c := range r.Changes {
				if existing, ok := mergedByPath[c.FilePath]; ok && existing.Content != c.Content {
					s.log.Warn(ctx, "multiagent: conflicting change to same file, keeping last writer", "file", c.FilePath)
				}
				mergedByPath[c.FilePath] = c
			}
		}
	}
	return toSlice(mergedByPath), tokens, cost, errs, false
}

// runWave executes one wave's subtasks with bounded concurrency. Results
// are appended as each Coder finishes, so the returned slice is ordered by
// actual completion time — the order the last-write-wins merge folds
// changes in.
func (s *Strategy) runWave(ctx context.Context, task *domain.CodingTask, execCtx strategy.TaskExecutionContext, wave []domain.SubTask) []domain.AgentResult {
	sem := make(chan struct{}, s.cfg.MaxParallelCoders)
	var mu sync.Mutex
	results := make([]domain.AgentResult, 0, len(wave))
	var wg sync.WaitGroup

	for i := range wave {
		wg.Add(1)
		go func(st domain.SubTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req := agent.Request{Task: task, Context: execCtx, SubTask: &st, Model: s.model}
			result := agent.RunTraced(ctx, s.coder, s.deps(), req)

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(wave[i])
	}
	wg.Wait()
	return results
}

// buildWaves groups subtasks into dependency-ordered waves: wave N
// contains every subtask whose dependencies are all satisfied by waves
// 0..N-1. The plan is assumed acyclic (the Planner validates this before
// returning).
func buildWaves(subtasks []domain.SubTask) [][]domain.SubTask {
	remaining := make(map[string]domain.SubTask, len(subtasks))
	for _, st := range subtasks {
		remaining[st.ID] = st
	}
	done := map[string]bool{}

	var waves [][]domain.SubTask
	for len(remaining) > 0 {
		var wave []domain.SubTask
		for id, st := range remaining {
			if dependenciesSatisfied(st, done) {
				wave = append(wave, st)
				_ = id
			}
		}
		if len(wave) == 0 {
			// Defensive: a cycle slipped past validation. Flush whatever
			// remains as one final wave rather than looping forever.
			for _, st := range remaining {
				wave = append(wave, st)
			}
		}
		sort.Slice(wave, func(i, j int) bool { return wave[i].ID < wave[j].ID })
		waves = append(waves, wave)
		for _, st := range wave {
			done[st.ID] = true
			delete(remaining, st.ID)
		}
	}
	return waves
}

func dependenciesSatisfied(st domain.SubTask, done map[string]bool) bool {
	for _, dep := range st.DependsOn {
		if !done[dep] {
			return false
		}
	}
	return true
}

func toSlice(byPath map[string]domain.CodeChange) []domain.CodeChange {
	out := make([]domain.CodeChange, 0, len(byPath))
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		out = append(out, byPath[p])
	}
	return out
}

func mergeChanges(base []domain.CodeChange, additional []domain.CodeChange, log telemetry.Logger) []domain.CodeChange {
	byPath := map[string]domain.CodeChange{}
	for _, c := range base {
		byPath[c.FilePath] = c
	}
	for _, c := range additional {
		if existing, ok := byPath[c.FilePath]; ok && existing.Content != c.Content {
			log.Warn(context.Background(), "multiagent: tester overwrote an existing file, keeping tester version", "file", c.FilePath)
		}
		byPath[c.FilePath] = c
	}
	return toSlice(byPath)
}

func cancelled(start time.Time) strategy.ExecutionResult {
	return strategy.ExecutionResult{
		Success:  false,
		Duration: time.Since(start),
		Errors:   []string{"cancelled"},
	}
}
