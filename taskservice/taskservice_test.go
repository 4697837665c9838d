package taskservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/events"
	"github.com/coderun/orchestrator/githubclient"
	"github.com/coderun/orchestrator/repo"
)

func TestCreateEmitsTaskCreatedEvent(t *testing.T) {
	pub := &events.RecordingPublisher{}
	svc := New(repo.NewInMemoryTaskRepository(), pub, nil, "", "", nil)

	task, err := svc.Create(t.Context(), "user-1", "Fix typo", "Quick fix for typo")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, task.Status)
	require.Len(t, pub.Events, 1)
	created, ok := pub.Events[0].(events.TaskCreatedEvent)
	require.True(t, ok)
	require.Equal(t, task.ID.String(), created.TaskID)
}

func TestDeleteRefusedWhileInProgress(t *testing.T) {
	svc := New(repo.NewInMemoryTaskRepository(), nil, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)

	err = svc.Delete(t.Context(), task.ID)
	require.Error(t, err)

	got, err := svc.GetByID(t.Context(), task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusInProgress, got.Status)
}

func TestDeletePermittedWhenNotInProgress(t *testing.T) {
	svc := New(repo.NewInMemoryTaskRepository(), nil, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(t.Context(), task.ID))

	_, err = svc.GetByID(t.Context(), task.ID)
	require.Error(t, err)
}

func TestStartAppliesDefaultComplexityFromPending(t *testing.T) {
	svc := New(repo.NewInMemoryTaskRepository(), nil, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	require.Empty(t, task.Complexity)

	started, err := svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)
	require.Equal(t, domain.ComplexityMedium, started.Complexity)
	require.Equal(t, domain.StatusInProgress, started.Status)
}

func TestStartFromClassifyingKeepsResolvedComplexity(t *testing.T) {
	svc := New(repo.NewInMemoryTaskRepository(), nil, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Classify(t.Context(), task.ID, domain.TaskTypeBugFix, domain.ComplexitySimple)
	require.NoError(t, err)

	started, err := svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)
	require.Equal(t, domain.ComplexitySimple, started.Complexity)
}

func TestStartEmitsTaskStartedEvent(t *testing.T) {
	pub := &events.RecordingPublisher{}
	svc := New(repo.NewInMemoryTaskRepository(), pub, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)

	execID := uuid.New()
	_, err = svc.Start(t.Context(), task.ID, execID, "Iterative", "mock-model")
	require.NoError(t, err)

	require.Len(t, pub.Events, 2)
	started, ok := pub.Events[1].(events.TaskStartedEvent)
	require.True(t, ok)
	require.Equal(t, execID.String(), started.ExecutionID)
	require.Equal(t, "Iterative", started.Strategy)
}

func TestLifecycleEventsAppearInOrder(t *testing.T) {
	pub := &events.RecordingPublisher{}
	svc := New(repo.NewInMemoryTaskRepository(), pub, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)

	execID := uuid.New()
	_, err = svc.Start(t.Context(), task.ID, execID, "SingleShot", "mock-model")
	require.NoError(t, err)
	_, err = svc.Complete(t.Context(), task.ID, execID, "SingleShot", 10, 0.01, time.Millisecond)
	require.NoError(t, err)

	// A re-execution of the now-terminal task still emits its own
	// Started/Failed pair without changing the stored status.
	execID2 := uuid.New()
	_, err = svc.Start(t.Context(), task.ID, execID2, "SingleShot", "mock-model")
	require.NoError(t, err)
	_, err = svc.Fail(t.Context(), task.ID, execID2, "SingleShot", 10, 0.01, time.Millisecond, "boom")
	require.NoError(t, err)

	require.Len(t, pub.Events, 5)
	_, ok := pub.Events[0].(events.TaskCreatedEvent)
	require.True(t, ok)
	_, ok = pub.Events[1].(events.TaskStartedEvent)
	require.True(t, ok)
	_, ok = pub.Events[2].(events.TaskCompletedEvent)
	require.True(t, ok)
	_, ok = pub.Events[3].(events.TaskStartedEvent)
	require.True(t, ok)
	_, ok = pub.Events[4].(events.TaskFailedEvent)
	require.True(t, ok)

	got, err := svc.GetByID(t.Context(), task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, got.Status)
}

func TestCompleteTransitionsToTerminalAndEmitsEvent(t *testing.T) {
	pub := &events.RecordingPublisher{}
	svc := New(repo.NewInMemoryTaskRepository(), pub, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)

	completed, err := svc.Complete(t.Context(), task.ID, task.ID, "SingleShot", 100, 0.01, time.Second)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	var sawCompleted bool
	for _, e := range pub.Events {
		if _, ok := e.(events.TaskCompletedEvent); ok {
			sawCompleted = true
		}
	}
	require.True(t, sawCompleted)
}

func TestReExecutionOfTerminalTaskEmitsEventWithoutChangingStatus(t *testing.T) {
	pub := &events.RecordingPublisher{}
	svc := New(repo.NewInMemoryTaskRepository(), pub, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)
	_, err = svc.Complete(t.Context(), task.ID, task.ID, "SingleShot", 10, 0.01, time.Millisecond)
	require.NoError(t, err)
	pub.Events = nil

	again, err := svc.Fail(t.Context(), task.ID, task.ID, "SingleShot", 10, 0.01, time.Millisecond, "re-run error")
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, again.Status)
	require.Len(t, pub.Events, 1)
	_, ok := pub.Events[0].(events.TaskFailedEvent)
	require.True(t, ok)
}

func TestFailStripsNewlinesFromErrorMessage(t *testing.T) {
	pub := &events.RecordingPublisher{}
	svc := New(repo.NewInMemoryTaskRepository(), pub, nil, "", "", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)

	_, err = svc.Fail(t.Context(), task.ID, task.ID, "Iterative", 10, 0.01, time.Millisecond, "line one\r\nline two\n")
	require.NoError(t, err)

	failed := pub.Events[len(pub.Events)-1].(events.TaskFailedEvent)
	require.NotContains(t, failed.Error, "\n")
	require.NotContains(t, failed.Error, "\r")
	require.Contains(t, failed.Error, "line one")
	require.Contains(t, failed.Error, "line two")
}

func TestCompleteOpensPROnlyOnce(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var pr githubclient.PullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pr))
		require.Equal(t, "acme", pr.Owner)
		require.Contains(t, pr.Body, prAuthor)
		_ = json.NewEncoder(w).Encode(githubclient.PullRequestResult{Number: 7, HTMLURL: "https://github.com/acme/repo/pull/7"})
	}))
	defer srv.Close()

	gh := githubclient.New(http.DefaultClient, githubclient.Config{ServiceURL: srv.URL, Timeout: time.Second}, nil)
	svc := New(repo.NewInMemoryTaskRepository(), nil, gh, "acme", "repo", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)

	completed, err := svc.Complete(t.Context(), task.ID, task.ID, "SingleShot", 10, 0.01, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, completed.PRNumber)
	require.Equal(t, 7, *completed.PRNumber)

	// Re-execution: PR already attached, so the GitHub client must not be
	// called a second time.
	_, err = svc.Complete(t.Context(), task.ID, task.ID, "SingleShot", 10, 0.01, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestCompletePRFailureDoesNotFailTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gh := githubclient.New(http.DefaultClient, githubclient.Config{ServiceURL: srv.URL, Timeout: time.Second}, nil)
	svc := New(repo.NewInMemoryTaskRepository(), nil, gh, "acme", "repo", nil)
	task, err := svc.Create(t.Context(), "user-1", "t", "d")
	require.NoError(t, err)
	_, err = svc.Start(t.Context(), task.ID, uuid.New(), "SingleShot", "mock-model")
	require.NoError(t, err)

	completed, err := svc.Complete(t.Context(), task.ID, task.ID, "SingleShot", 10, 0.01, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, completed.Status)
	require.Nil(t, completed.PRNumber)
}

func TestCanTransitionMatchesStateMachine(t *testing.T) {
	require.True(t, CanTransition(domain.StatusPending, domain.StatusInProgress))
	require.True(t, CanTransition(domain.StatusInProgress, domain.StatusCompleted))
	require.True(t, CanTransition(domain.StatusInProgress, domain.StatusFailed))
	require.False(t, CanTransition(domain.StatusCompleted, domain.StatusInProgress))
	require.False(t, CanTransition(domain.StatusPending, domain.StatusCompleted))
}
