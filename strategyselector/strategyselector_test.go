package strategyselector

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/mlclassifierclient"
	"github.com/coderun/orchestrator/repo"
	"github.com/coderun/orchestrator/strategy"
	"github.com/coderun/orchestrator/taskservice"
)

type stubStrategy struct{ name string }

func (s stubStrategy) Name() string { return s.name }
func (s stubStrategy) SupportsComplexity() domain.Complexity { return domain.ComplexitySimple }
func (s stubStrategy) Execute(context.Context, *domain.CodingTask, strategy.TaskExecutionContext) strategy.ExecutionResult {
	return strategy.ExecutionResult{}
}

func testRegistry() Registry {
	return Registry{
		"SingleShot": stubStrategy{"SingleShot"},
		"Iterative":  stubStrategy{"Iterative"},
		"MultiAgent": stubStrategy{"MultiAgent"},
	}
}

type erroringDoer struct{}

func (erroringDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestSelectHonorsManualOverride(t *testing.T) {
	sel := New(mlclassifierclient.New(erroringDoer{}, mlclassifierclient.Config{BaseURL: "http://unused"}, nil), nil, testRegistry(), nil)
	task := domain.NewCodingTask("u1", "t", "some description")

	st := sel.Select(context.Background(), task, "MultiAgent")
	require.Equal(t, "MultiAgent", st.Name())
}

func TestSelectFallsBackToIterativeOnUnknownOverride(t *testing.T) {
	sel := New(mlclassifierclient.New(erroringDoer{}, mlclassifierclient.Config{BaseURL: "http://unused"}, nil), nil, testRegistry(), nil)
	task := domain.NewCodingTask("u1", "t", "some description")

	st := sel.Select(context.Background(), task, "DoesNotExist")
	require.Equal(t, "Iterative", st.Name())
}

func TestHeuristicComplexSignals(t *testing.T) {
	require.Equal(t, domain.ComplexityComplex, heuristicComplexity("We need a major architecture refactor here"))
}

func TestHeuristicSimpleSignals(t *testing.T) {
	require.Equal(t, domain.ComplexitySimple, heuristicComplexity("fix a typo"))
}

func TestHeuristicWordCountThresholds(t *testing.T) {
	long := ""
	for i := 0; i < 101; i++ {
		long += "word "
	}
	require.Equal(t, domain.ComplexityComplex, heuristicComplexity(long))
	require.Equal(t, domain.ComplexitySimple, heuristicComplexity("short task here"))
}

func TestHeuristicMediumDefault(t *testing.T) {
	require.Equal(t, domain.ComplexityMedium, heuristicComplexity("Please update the user profile page layout and add a new field for the bio section with validation and a character counter below it"))
}

func TestSelectFallsBackToHeuristicWhenClassifierUnavailable(t *testing.T) {
	sel := New(mlclassifierclient.New(erroringDoer{}, mlclassifierclient.Config{BaseURL: "http://unused"}, nil), nil, testRegistry(), nil)
	task := domain.NewCodingTask("u1", "t", "fix a typo")

	st := sel.Select(context.Background(), task, "")
	require.Equal(t, "SingleShot", st.Name())
	require.Equal(t, domain.ComplexitySimple, task.Complexity)
}

func TestSelectPersistsResolvedClassification(t *testing.T) {
	taskRepo := repo.NewInMemoryTaskRepository()
	svc := taskservice.New(taskRepo, nil, nil, "", "", nil)
	sel := New(nil, svc, testRegistry(), nil)

	task := domain.NewCodingTask("u1", "fix typo", "fix a typo")
	require.NoError(t, taskRepo.Save(context.Background(), task))

	st := sel.Select(context.Background(), task, "")
	require.Equal(t, "SingleShot", st.Name())

	// The classification must be visible to a fresh load, not just on the
	// pointer passed into Select.
	saved, err := taskRepo.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ComplexitySimple, saved.Complexity)
	require.Equal(t, domain.StatusClassifying, saved.Status)
}

func TestSelectDoesNotOverwriteAlreadyClassifiedTask(t *testing.T) {
	sel := New(mlclassifierclient.New(erroringDoer{}, mlclassifierclient.Config{BaseURL: "http://unused"}, nil), nil, testRegistry(), nil)
	task := domain.NewCodingTask("u1", "t", "fix a typo")
	task.Status = domain.StatusInProgress
	task.Complexity = domain.ComplexityMedium

	sel.Select(context.Background(), task, "")
	require.Equal(t, domain.ComplexityMedium, task.Complexity)
}
