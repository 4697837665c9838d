// Package modelselector implements the ML Model Selector: combine an
// active A/B test, the performance tracker's best-model lookup,
// and a complexity-ordered fallback preference list into a single model
// choice. The tracker's pick and the fallback list are checked against what
// the model registry reports as currently available; an A/B variant and the
// final safe default are returned without that check.
package modelselector

import (
	"context"

	"github.com/coderun/orchestrator/abtest"
	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/modelperf"
	"github.com/coderun/orchestrator/modelregistry"
	"github.com/coderun/orchestrator/telemetry"
)

// Selection is the result of SelectBestModel.
type Selection struct {
	Model        string
	Reason       string
	Confidence   float64
	IsABTest     bool
	ABTestID     string
	ABVariant    string // "A" or "B" when IsABTest
	Alternatives []string
}

// Selector composes the three model-selection collaborators.
type Selector struct {
	abEngine *abtest.Engine
	perf     *modelperf.Tracker
	registry *modelregistry.Registry
	log      telemetry.Logger
}

// New constructs a Selector. logger may be nil.
func New(abEngine *abtest.Engine, perf *modelperf.Tracker, registry *modelregistry.Registry, logger telemetry.Logger) *Selector {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Selector{abEngine: abEngine, perf: perf, registry: registry, log: logger}
}

// safeDefault is the widely available cloud model used when every other
// selection path is exhausted.
const safeDefault = "gpt-4o-mini"

// complexityPreference orders candidate models from cheapest to most
// capable; Simple tasks prefer the front of the list, Complex/Epic the
// back.
var complexityPreference = []string{
	"claude-3-5-haiku-latest",
	"gpt-4o-mini",
	"gpt-4o",
	"claude-3-5-sonnet-latest",
	"anthropic.claude-3-sonnet",
}

// SelectBestModel applies the four-step selection order: active A/B test,
// then performance-tracker best-model, then a complexity-ordered fallback
// list, then a safe default.
func (s *Selector) SelectBestModel(ctx context.Context, description string, taskType domain.TaskType, complexity domain.Complexity, requestID string) Selection {
	available := s.registry.List(ctx)
	availableSet := make(map[string]bool, len(available))
	for _, m := range available {
		if m.Available {
			availableSet[m.Name] = true
		}
	}

	if test := s.abEngine.GetActiveTest(taskType); test != nil {
		model := abtest.SelectVariant(*test, requestID)
		variant := "A"
		if model == test.ModelB {
			variant = "B"
		}
		return Selection{
			Model:        model,
			Reason:       "active A/B test variant assignment",
			Confidence:   0.5,
			IsABTest:     true,
			ABTestID:     test.ID.String(),
			ABVariant:    variant,
			Alternatives: alternatives(available, model, 3),
		}
	}

	if best, ok := s.perf.GetBest(taskType, complexity); ok && availableSet[best] {
		metrics := s.perf.Get(best)
		confidence := 0.0
		if metrics != nil {
			if bucket := metrics.Breakdown[domain.BucketKey(taskType, complexity)]; bucket != nil {
				confidence = bucket.SuccessRate()
			}
		}
		return Selection{
			Model:        best,
			Reason:       "performance tracker best-model lookup",
			Confidence:   confidence,
			Alternatives: alternatives(available, best, 3),
		}
	}

	for _, candidate := range orderedByComplexity(complexity) {
		if availableSet[candidate] {
			return Selection{
				Model:        candidate,
				Reason:       "complexity-ordered fallback preference",
				Confidence:   0.6,
				Alternatives: alternatives(available, candidate, 3),
			}
		}
	}

	s.log.Warn(ctx, "model selector: falling back to safe default", "taskType", taskType, "complexity", complexity)
	return Selection{
		Model:        safeDefault,
		Reason:       "safe default: no A/B test, tracker, or fallback candidate available",
		Confidence:   0.0,
		Alternatives: alternatives(available, safeDefault, 3),
	}
}

// orderedByComplexity returns complexityPreference in cheap-first order for
// Simple/Medium tasks, or reversed (capable-first) for Complex/Epic.
func orderedByComplexity(c domain.Complexity) []string {
	if c == domain.ComplexityComplex || c == domain.ComplexityEpic {
		reversed := make([]string, len(complexityPreference))
		for i, m := range complexityPreference {
			reversed[len(complexityPreference)-1-i] = m
		}
		return reversed
	}
	return complexityPreference
}

// alternatives returns up to n other available models, excluding selected.
func alternatives(available []domain.ModelInfo, selected string, n int) []string {
	out := make([]string, 0, n)
	for _, m := range available {
		if !m.Available || m.Name == selected {
			continue
		}
		out = append(out, m.Name)
		if len(out) == n {
			break
		}
	}
	return out
}
