package feedback

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
)

func newFeedback(taskID uuid.UUID, procedureID string, sentiment domain.Sentiment) *domain.Feedback {
	pid := procedureID
	return &domain.Feedback{
		ID:          uuid.New(),
		TaskID:      taskID,
		UserID:      "u1",
		Sentiment:   sentiment,
		ProcedureID: &pid,
	}
}

func TestRecordPersistsFeedback(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := New(repo, nil, nil, Config{}, nil)
	taskID := uuid.New()

	require.NoError(t, svc.Record(context.Background(), newFeedback(taskID, "proc-1", domain.SentimentPositive)))
	require.Len(t, repo.records, 1)
}

func TestAnalyzePatternsFlagsSignificantDeviation(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := New(repo, nil, nil, Config{}, nil)
	taskID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		require.NoError(t, svc.Record(ctx, newFeedback(taskID, "proc-1", domain.SentimentPositive)))
	}
	require.NoError(t, svc.Record(ctx, newFeedback(taskID, "proc-1", domain.SentimentNegative)))

	analysis, err := svc.AnalyzePatterns(ctx, taskID.String())
	require.NoError(t, err)
	require.Len(t, analysis.Patterns, 1)
	require.True(t, analysis.Patterns[0].Significant)
}

func TestAnalyzePatternsDoesNotFlagBalancedSplit(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := New(repo, nil, nil, Config{}, nil)
	taskID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, newFeedback(taskID, "proc-1", domain.SentimentPositive)))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, newFeedback(taskID, "proc-1", domain.SentimentNegative)))
	}

	analysis, err := svc.AnalyzePatterns(ctx, taskID.String())
	require.NoError(t, err)
	require.False(t, analysis.Patterns[0].Significant)
}

func TestUpdateModelParametersSkipsBelowMinSamples(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := New(repo, nil, nil, Config{MinSamplesForRetrain: 1000}, nil)
	analysis := Analysis{
		TaskID:   "t1",
		Patterns: []ProcedurePattern{{ProcedureID: "p1", Samples: 10, SuccessRate: 0.9, Significant: true}},
	}
	// No classifier configured; call must not panic and must be a no-op.
	svc.UpdateModelParameters(context.Background(), analysis)
}

func TestUpdateModelParametersSkipsWhenNotSignificant(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := New(repo, nil, nil, Config{}, nil)
	analysis := Analysis{
		TaskID:   "t1",
		Patterns: []ProcedurePattern{{ProcedureID: "p1", Samples: 2000, SuccessRate: 0.5, Significant: false}},
	}
	svc.UpdateModelParameters(context.Background(), analysis)
}
