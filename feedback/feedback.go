// Package feedback implements the Feedback Service: recording user
// feedback, grouping it by procedure to find significant
// success-rate deviations, and best-effort triggering the ML classifier's
// retrain endpoint when enough signal has accumulated.
package feedback

import (
	"context"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/mlclassifier"
	"github.com/coderun/orchestrator/mlclassifierclient"
	"github.com/coderun/orchestrator/telemetry"
)

// DefaultMinSamplesForRetrain is the minimum total sample count across all
// recorded patterns before UpdateModelParameters triggers a retrain.
const DefaultMinSamplesForRetrain = 1000

// SignificanceThreshold is how far a procedure's success rate must deviate
// from 0.5 to be flagged "significant".
const SignificanceThreshold = 0.2

// MemoryService optionally tracks per-procedure success counters; Record
// increments or decrements it when feedback references a procedure id.
// Nil is a valid Service dependency.
type MemoryService interface {
	IncrementSuccess(ctx context.Context, procedureID string) error
	IncrementFailure(ctx context.Context, procedureID string) error
}

// ProcedurePattern is one procedure's aggregated feedback.
type ProcedurePattern struct {
	ProcedureID string
	Samples     int
	SuccessRate float64
	Significant bool
}

// Analysis is the result of grouping a task's feedback by procedure.
type Analysis struct {
	TaskID   string
	Patterns []ProcedurePattern
}

// HasSignificantPattern reports whether any pattern in the analysis is
// flagged significant.
func (a Analysis) HasSignificantPattern() bool {
	for _, p := range a.Patterns {
		if p.Significant {
			return true
		}
	}
	return false
}

// totalSamples sums every pattern's sample count, used against
// DefaultMinSamplesForRetrain.
func (a Analysis) totalSamples() int {
	total := 0
	for _, p := range a.Patterns {
		total += p.Samples
	}
	return total
}

// Repository persists Feedback records.
type Repository interface {
	Save(ctx context.Context, fb *domain.Feedback) error
	ListByTask(ctx context.Context, taskID string) ([]domain.Feedback, error)
}

// Service implements the feedback lifecycle.
type Service struct {
	repo       Repository
	memory     MemoryService
	classifier *mlclassifierclient.Client
	minSamples int
	log        telemetry.Logger
}

// Config configures a Service.
type Config struct {
	MinSamplesForRetrain int
}

// New constructs a Service. memory and classifier may be nil.
func New(repo Repository, memory MemoryService, classifier *mlclassifierclient.Client, cfg Config, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	minSamples := cfg.MinSamplesForRetrain
	if minSamples <= 0 {
		minSamples = DefaultMinSamplesForRetrain
	}
	return &Service{repo: repo, memory: memory, classifier: classifier, minSamples: minSamples, log: logger}
}

// Record persists fb, forwards it to the classifier's training endpoint,
// and, when it references a procedure, adjusts that procedure's success
// counters in the optional memory service. Only the save can fail the
// call; the forwarding and counter updates are best-effort.
func (s *Service) Record(ctx context.Context, fb *domain.Feedback) error {
	if err := s.repo.Save(ctx, fb); err != nil {
		return orcherrors.Wrap(orcherrors.KindInternal, "save feedback", err)
	}
	if s.classifier != nil {
		tf := mlclassifier.TrainingFeedback{
			TaskID:    fb.TaskID.String(),
			Sentiment: string(fb.Sentiment),
			Rating:    fb.Rating,
		}
		if err := s.classifier.SubmitTrainingFeedback(ctx, tf); err != nil {
			s.log.Warn(ctx, "feedback: training feedback submission failed", "task_id", fb.TaskID, "error", err)
		}
	}
	if fb.ProcedureID == nil || s.memory == nil {
		return nil
	}
	var err error
	if fb.Sentiment == domain.SentimentPositive {
		err = s.memory.IncrementSuccess(ctx, *fb.ProcedureID)
	} else if fb.Sentiment == domain.SentimentNegative {
		err = s.memory.IncrementFailure(ctx, *fb.ProcedureID)
	}
	if err != nil {
		s.log.Warn(ctx, "feedback: memory service update failed", "procedure_id", *fb.ProcedureID, "error", err)
	}
	return nil
}

// AnalyzePatterns groups taskID's feedback by procedure id, computing
// success rate and sample count per group, flagging a pattern significant
// when |successRate-0.5| > SignificanceThreshold.
func (s *Service) AnalyzePatterns(ctx context.Context, taskID string) (Analysis, error) {
	records, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		return Analysis{}, orcherrors.Wrap(orcherrors.KindInternal, "list feedback for task", err)
	}

	type bucket struct {
		samples  int
		positive int
	}
	byProcedure := map[string]*bucket{}
	for _, fb := range records {
		if fb.ProcedureID == nil {
			continue
		}
		b, ok := byProcedure[*fb.ProcedureID]
		if !ok {
			b = &bucket{}
			byProcedure[*fb.ProcedureID] = b
		}
		b.samples++
		if fb.Sentiment == domain.SentimentPositive {
			b.positive++
		}
	}

	analysis := Analysis{TaskID: taskID}
	for procedureID, b := range byProcedure {
		rate := float64(b.positive) / float64(b.samples)
		significant := abs(rate-0.5) > SignificanceThreshold
		analysis.Patterns = append(analysis.Patterns, ProcedurePattern{
			ProcedureID: procedureID,
			Samples:     b.samples,
			SuccessRate: rate,
			Significant: significant,
		})
	}
	return analysis, nil
}

// UpdateModelParameters triggers the ML classifier's retrain endpoint only
// when analysis has a significant pattern and enough total samples have
// accumulated; any failure is logged, never propagated.
func (s *Service) UpdateModelParameters(ctx context.Context, analysis Analysis) {
	if !analysis.HasSignificantPattern() {
		return
	}
	if analysis.totalSamples() < s.minSamples {
		return
	}
	if s.classifier == nil {
		return
	}
	if err := s.classifier.Retrain(ctx); err != nil {
		s.log.Warn(ctx, "feedback: retrain trigger failed", "task_id", analysis.TaskID, "error", err)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
