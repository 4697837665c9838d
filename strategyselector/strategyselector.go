// Package strategyselector resolves which execution strategy a task
// should run under: a manual override wins unconditionally, else the ML
// classifier is consulted, falling back to a pure keyword/word-count
// heuristic when the classifier is unavailable.
package strategyselector

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/mlclassifier"
	"github.com/coderun/orchestrator/mlclassifierclient"
	"github.com/coderun/orchestrator/strategy"
	"github.com/coderun/orchestrator/telemetry"
)

// LatencyTarget is the time budget for Select when the classifier responds
// within its own budget; exceeding it is logged, not enforced.
const LatencyTarget = 100 * time.Millisecond

// Registry maps a strategy name to its implementation, used to resolve a
// manual override.
type Registry map[string]strategy.Strategy

// TaskClassifier persists a resolved classification on a task. Satisfied by
// taskservice.Service; nil disables persistence (the resolved complexity is
// then only applied to the in-memory task).
type TaskClassifier interface {
	Classify(ctx context.Context, id uuid.UUID, taskType domain.TaskType, complexity domain.Complexity) (*domain.CodingTask, error)
}

// Selector resolves the Strategy for a task.
type Selector struct {
	classifier *mlclassifierclient.Client
	tasks      TaskClassifier
	registry   Registry
	log        telemetry.Logger
}

// New constructs a Selector. tasks may be nil, in which case resolved
// classifications are not persisted.
func New(classifier *mlclassifierclient.Client, tasks TaskClassifier, registry Registry, logger telemetry.Logger) *Selector {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Selector{classifier: classifier, tasks: tasks, registry: registry, log: logger}
}

// Select resolves the strategy for task, honoring manualOverride when
// non-empty, and idempotently updates task.Type/Complexity if the task is
// still Pending or Classifying.
func (s *Selector) Select(ctx context.Context, task *domain.CodingTask, manualOverride string) strategy.Strategy {
	start := time.Now()
	defer func() {
		if elapsed := time.Since(start); elapsed > LatencyTarget {
			s.log.Warn(ctx, "strategyselector: latency target exceeded", "task_id", task.ID, "elapsed", elapsed)
		}
	}()

	if manualOverride != "" {
		if st, ok := s.registry[manualOverride]; ok {
			return st
		}
		s.log.Warn(ctx, "strategyselector: manual override did not resolve, falling back to Iterative", "override", manualOverride, "task_id", task.ID)
		return s.registry["Iterative"]
	}

	taskType, complexity := s.classify(ctx, task)
	s.applyClassification(ctx, task, taskType, complexity)
	return s.registry[strategyNameFor(complexity)]
}

func (s *Selector) classify(ctx context.Context, task *domain.CodingTask) (domain.TaskType, domain.Complexity) {
	if s.classifier == nil {
		return task.Type, heuristicComplexity(task.Description)
	}
	resp, err := s.classifier.Classify(ctx, mlclassifier.Request{TaskDescription: task.Description})
	if err != nil {
		s.log.Warn(ctx, "strategyselector: classifier unavailable, using heuristic", "task_id", task.ID, "error", err)
		return task.Type, heuristicComplexity(task.Description)
	}
	taskType := domain.TaskType(resp.TaskType)
	if taskType == "" {
		taskType = task.Type
	}
	return taskType, domain.Complexity(resp.Complexity)
}

// heuristicComplexity is the keyword/word-count fallback used when the ML
// classifier is unavailable.
func heuristicComplexity(description string) domain.Complexity {
	lower := strings.ToLower(description)
	wordCount := len(strings.Fields(description))

	if containsAny(lower, "architecture", "refactor", "rewrite", "migration", "complex") || wordCount > 100 {
		return domain.ComplexityComplex
	}
	if containsAny(lower, "fix", "typo", "small", "minor", "quick", "simple") || wordCount < 20 {
		return domain.ComplexitySimple
	}
	return domain.ComplexityMedium
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func strategyNameFor(c domain.Complexity) string {
	switch c {
	case domain.ComplexitySimple:
		return "SingleShot"
	case domain.ComplexityComplex, domain.ComplexityEpic:
		return "MultiAgent"
	default:
		return "Iterative"
	}
}

// applyClassification idempotently records the resolved type/complexity
// when the task is still Pending or Classifying; already-classified tasks
// (e.g. a re-selection on retry) are left untouched. The classification is
// persisted through the task service so a later reload of the task sees
// it; persistence failure degrades to the in-memory update with a warning.
func (s *Selector) applyClassification(ctx context.Context, task *domain.CodingTask, taskType domain.TaskType, complexity domain.Complexity) {
	if task.Status != domain.StatusPending && task.Status != domain.StatusClassifying {
		return
	}
	if s.tasks != nil {
		updated, err := s.tasks.Classify(ctx, task.ID, taskType, complexity)
		if err == nil {
			*task = *updated
			return
		}
		s.log.Warn(ctx, "strategyselector: failed to persist classification", "task_id", task.ID, "error", err)
	}
	task.Type = taskType
	task.Complexity = complexity
}
