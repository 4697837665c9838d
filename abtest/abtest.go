// Package abtest implements the A/B testing engine: test declaration,
// sticky variant assignment, result recording, and winner determination by
// z-score. State is protected by a single RWMutex — one owning lock per
// shared registry, snapshots for readers. Sticky assignment uses FNV-1a, a
// stable and dependency-free hash already in the standard library.
package abtest

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/orcherrors"
)

// Engine is the concurrency-safe A/B testing engine.
type Engine struct {
	mu             sync.RWMutex
	tests          map[uuid.UUID]*domain.ABTest
	results        map[uuid.UUID][]domain.ABTestResult
	defaultTraffic int
}

// Config configures an Engine.
type Config struct {
	DefaultTrafficPercent int // used when CreateTest omits TrafficPercent
}

// New constructs an empty Engine.
func New(cfg Config) *Engine {
	return &Engine{
		tests:          make(map[uuid.UUID]*domain.ABTest),
		results:        make(map[uuid.UUID][]domain.ABTestResult),
		defaultTraffic: cfg.DefaultTrafficPercent,
	}
}

// CreateTestRequest is the input to CreateTest.
type CreateTestRequest struct {
	Name           string
	ModelA         string
	ModelB         string
	TaskTypeFilter *domain.TaskType
	TrafficPercent int // 0 means "use engine default"
	MinSamples     int
}

// CreateTest declares a new active A/B test.
func (e *Engine) CreateTest(req CreateTestRequest) (*domain.ABTest, error) {
	if req.ModelA == "" || req.ModelB == "" {
		return nil, orcherrors.Validation("both model A and model B are required")
	}
	traffic := req.TrafficPercent
	if traffic == 0 {
		traffic = e.defaultTraffic
	}
	if traffic < 0 || traffic > 100 {
		return nil, orcherrors.Validation("traffic percent must be in [0,100]")
	}
	test := &domain.ABTest{
		ID:             uuid.New(),
		Name:           req.Name,
		ModelA:         req.ModelA,
		ModelB:         req.ModelB,
		TaskTypeFilter: req.TaskTypeFilter,
		TrafficPercent: traffic,
		MinSamples:     req.MinSamples,
		Status:         domain.ABTestActive,
		StartDate:      time.Now(),
	}
	e.mu.Lock()
	e.tests[test.ID] = test
	e.mu.Unlock()
	return test, nil
}

// GetActiveTest returns the most-recently-started active test matching
// taskType (unfiltered tests match any task type), or nil if none match.
func (e *Engine) GetActiveTest(taskType domain.TaskType) *domain.ABTest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var best *domain.ABTest
	now := time.Now()
	for _, t := range e.tests {
		if !t.Matches(taskType, now) {
			continue
		}
		if best == nil || t.StartDate.After(best.StartDate) {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	snapshot := *best
	return &snapshot
}

// SelectVariant deterministically assigns requestId to a model for test:
// hash the request id; outside the traffic split, always return model A
// (the control); inside it, split 50/50 by a second bit of the same hash
// so the same requestId always maps to the same variant.
func SelectVariant(test domain.ABTest, requestID string) string {
	h := stableHash(requestID)
	inTestTraffic := int(h%100) < test.TrafficPercent
	if !inTestTraffic {
		return test.ModelA
	}
	if h%2 == 0 {
		return test.ModelA
	}
	return test.ModelB
}

func stableHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// RecordResult appends a result for testID/variant.
func (e *Engine) RecordResult(testID uuid.UUID, variant string, result domain.ABTestResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tests[testID]; !ok {
		return orcherrors.NotFound("ab test %s not found", testID)
	}
	result.TestID = testID
	result.Variant = variant
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	e.results[testID] = append(e.results[testID], result)
	return nil
}

// VariantAggregate summarizes one variant's recorded results.
type VariantAggregate struct {
	Samples     int
	Successes   int
	SuccessRate float64
	AvgDuration time.Duration
	AvgTokens   float64
	AvgCost     float64
}

// Results is the aggregated view GetResults returns.
type Results struct {
	TestID uuid.UUID
	A      VariantAggregate
	B      VariantAggregate
	Winner string // "A", "B", or "" if not yet determined
}

// GetResults aggregates recorded results for testID and determines a
// winner by z-score once both variants have at least 30 samples. Average
// duration, tokens, and cost are reported but never used to pick a winner;
// quality scores are not aggregated.
func (e *Engine) GetResults(testID uuid.UUID) (*Results, error) {
	e.mu.RLock()
	_, ok := e.tests[testID]
	results := append([]domain.ABTestResult(nil), e.results[testID]...)
	e.mu.RUnlock()
	if !ok {
		return nil, orcherrors.NotFound("ab test %s not found", testID)
	}

	out := &Results{TestID: testID}
	out.A = aggregate(results, "A")
	out.B = aggregate(results, "B")

	const minSamplesForWinner = 30
	if out.A.Samples >= minSamplesForWinner && out.B.Samples >= minSamplesForWinner {
		z := zScore(out.A, out.B)
		if math.Abs(z) > 1.96 {
			if out.A.SuccessRate > out.B.SuccessRate {
				out.Winner = "A"
			} else {
				out.Winner = "B"
			}
		}
	}
	return out, nil
}

// EndTest marks testID as completed, no longer eligible for
// GetActiveTest.
func (e *Engine) EndTest(testID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	test, ok := e.tests[testID]
	if !ok {
		return orcherrors.NotFound("ab test %s not found", testID)
	}
	test.Status = domain.ABTestCompleted
	now := time.Now()
	test.EndDate = &now
	return nil
}

func aggregate(results []domain.ABTestResult, variant string) VariantAggregate {
	var agg VariantAggregate
	var totalDur time.Duration
	var totalTokens, totalCost float64
	for _, r := range results {
		if r.Variant != variant {
			continue
		}
		agg.Samples++
		if r.Success {
			agg.Successes++
		}
		totalDur += r.Duration
		totalTokens += float64(r.Tokens)
		totalCost += r.Cost
	}
	if agg.Samples > 0 {
		agg.SuccessRate = float64(agg.Successes) / float64(agg.Samples)
		agg.AvgDuration = totalDur / time.Duration(agg.Samples)
		agg.AvgTokens = totalTokens / float64(agg.Samples)
		agg.AvgCost = totalCost / float64(agg.Samples)
	}
	return agg
}

// zScore computes the z-score of the difference in success rates between
// two independent samples, via a pooled standard error.
func zScore(a, b VariantAggregate) float64 {
	if a.Samples == 0 || b.Samples == 0 {
		return 0
	}
	pooledP := float64(a.Successes+b.Successes) / float64(a.Samples+b.Samples)
	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(a.Samples) + 1/float64(b.Samples)))
	if se == 0 {
		return 0
	}
	return (a.SuccessRate - b.SuccessRate) / se
}
