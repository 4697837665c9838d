// Package strategy defines the uniform contract every execution strategy
// implements: SingleShot, Iterative, and MultiAgent all satisfy Strategy,
// so the coordinator can run whichever one the strategy selector resolved
// without caring which it got.
package strategy

import (
	"context"
	"time"

	"github.com/coderun/orchestrator/domain"
)

// ContextFile is one file the coordinator loaded for a strategy run: its
// path, declared language, and current content (empty for a new file).
type ContextFile struct {
	Path     string
	Language string
	Content  string
}

// TaskExecutionContext carries the relevant file set a strategy may read or
// modify, loaded by the coordinator before invoking the strategy.
type TaskExecutionContext struct {
	Files []ContextFile
}

// ExecutionResult is the uniform output of a strategy run.
type ExecutionResult struct {
	Success        bool
	Changes        []domain.CodeChange
	TotalTokens    int
	TotalCost      float64
	Duration       time.Duration
	IterationsUsed int
	Errors         []string
}

// Strategy turns a task plus its loaded file context into proposed code
// changes. Implementations never panic and never return a Go error from
// Execute; every failure mode is represented in ExecutionResult.
type Strategy interface {
	// Name identifies the strategy for logging, events, and manual override
	// resolution.
	Name() string

	// SupportsComplexity reports the complexity tier this strategy is
	// designed for: Simple, Medium, or Complex.
	SupportsComplexity() domain.Complexity

	// Execute runs the strategy to completion or until ctx is cancelled.
	Execute(ctx context.Context, task *domain.CodingTask, execCtx TaskExecutionContext) ExecutionResult
}
