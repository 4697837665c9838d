// Package taskservice is the domain service governing a CodingTask's
// lifecycle: an explicit transition-table state machine over the six task
// statuses. Every transition emits a domain event via the events.Publisher
// abstraction.
package taskservice

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/events"
	"github.com/coderun/orchestrator/domain/orcherrors"
	"github.com/coderun/orchestrator/githubclient"
	"github.com/coderun/orchestrator/repo"
	"github.com/coderun/orchestrator/telemetry"
)

// transitions is the explicit state-transition table: from status to the
// set of statuses it may move to.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusPending:     {domain.StatusClassifying, domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusClassifying: {domain.StatusInProgress, domain.StatusCancelled},
	domain.StatusInProgress:  {domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled},
	domain.StatusCompleted:   {},
	domain.StatusFailed:      {},
	domain.StatusCancelled:   {},
}

// CanTransition reports whether a task may move from `from` to `to`.
func CanTransition(from, to domain.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// prAuthor is the attribution used when the core opens a PR. The core has
// no authentication subsystem of its own, so there is no auth context to
// source a real identity from.
const prAuthor = "coding-agent"

// Service implements the task lifecycle operations.
type Service struct {
	tasks     repo.TaskRepository
	publisher events.Publisher
	github    *githubclient.Client
	repoOwner string
	repoName  string
	log       telemetry.Logger
}

// New constructs a Service. publisher and github may be nil (a
// events.NoopPublisher and "no PR integration" are substituted). repoOwner
// and repoName address the repository the GitHub wrapper opens PRs
// against; when github is nil they are unused.
func New(tasks repo.TaskRepository, publisher events.Publisher, github *githubclient.Client, repoOwner, repoName string, logger telemetry.Logger) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Service{tasks: tasks, publisher: publisher, github: github, repoOwner: repoOwner, repoName: repoName, log: logger}
}

// Create persists a new task and emits TaskCreatedEvent.
func (s *Service) Create(ctx context.Context, userID, title, description string) (*domain.CodingTask, error) {
	task := domain.NewCodingTask(userID, title, description)
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "save new task", err)
	}
	s.publish(ctx, events.NewTaskCreatedEvent(task.ID.String(), task.Title, task.Description))
	return task, nil
}

// Update persists mutated fields of an existing, non-terminal task.
func (s *Service) Update(ctx context.Context, task *domain.CodingTask) error {
	if err := s.tasks.Save(ctx, task); err != nil {
		return orcherrors.Wrap(orcherrors.KindInternal, "update task", err)
	}
	return nil
}

// Delete removes a task, refusing when it is InProgress.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == domain.StatusInProgress {
		return orcherrors.Conflict("task %s cannot be deleted while InProgress", id)
	}
	return s.tasks.Delete(ctx, id)
}

// Classify moves a Pending task to Classifying and records the resolved
// type/complexity; it is idempotent for already-classified tasks.
func (s *Service) Classify(ctx context.Context, id uuid.UUID, taskType domain.TaskType, complexity domain.Complexity) (*domain.CodingTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.StatusPending {
		task.Status = domain.StatusClassifying
	}
	task.Type = taskType
	task.Complexity = complexity
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, orcherrors.Wrap(orcherrors.KindInternal, "save classified task", err)
	}
	return task, nil
}

// Start transitions Pending/Classifying to InProgress, applying the
// default Medium complexity first when the task is still Pending, and
// emits TaskStartedEvent. A task that is already terminal
// keeps its status — re-executions do not reopen a finished task — but the
// event is still emitted, matching the re-execution semantics of Complete
// and Fail.
func (s *Service) Start(ctx context.Context, id uuid.UUID, executionID uuid.UUID, strategyName, model string) (*domain.CodingTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		if task.Status == domain.StatusPending && task.Complexity == "" {
			task.Complexity = domain.ComplexityMedium
		}
		if !CanTransition(task.Status, domain.StatusInProgress) {
			return nil, orcherrors.Conflict("task %s cannot start from status %s", id, task.Status)
		}
		task.Status = domain.StatusInProgress
		if err := s.tasks.Save(ctx, task); err != nil {
			return nil, orcherrors.Wrap(orcherrors.KindInternal, "save started task", err)
		}
	}
	s.publish(ctx, events.NewTaskStartedEvent(id.String(), executionID.String(), strategyName, model))
	return task, nil
}

// Complete transitions InProgress to Completed, recording execution
// metrics and emitting TaskCompletedEvent. If the task is already
// terminal, status is left unchanged but the event is still emitted. On
// success it best-effort opens a PR via the GitHub client when the task
// has none yet.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, executionID uuid.UUID, strategyName string, tokens int, cost float64, duration time.Duration) (*domain.CodingTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		task.Status = domain.StatusCompleted
		now := time.Now()
		task.CompletedAt = &now
		if err := s.tasks.Save(ctx, task); err != nil {
			return nil, orcherrors.Wrap(orcherrors.KindInternal, "save completed task", err)
		}
	}
	s.publish(ctx, events.NewTaskCompletedEvent(id.String(), executionID.String(), strategyName, tokens, cost, duration))

	if s.github != nil && task.PRNumber == nil {
		s.maybeCreatePR(ctx, task)
	}
	return task, nil
}

// Fail transitions InProgress to Failed and emits TaskFailedEvent. Like
// Complete, an already-terminal task has its status left unchanged but
// still emits the event.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, executionID uuid.UUID, strategyName string, tokens int, cost float64, duration time.Duration, errMsg string) (*domain.CodingTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		task.Status = domain.StatusFailed
		if err := s.tasks.Save(ctx, task); err != nil {
			return nil, orcherrors.Wrap(orcherrors.KindInternal, "save failed task", err)
		}
	}
	// Newlines are stripped so a single log/event line never wraps.
	clean := strings.ReplaceAll(strings.ReplaceAll(errMsg, "\r", " "), "\n", " ")
	s.publish(ctx, events.NewTaskFailedEvent(id.String(), executionID.String(), strategyName, tokens, cost, duration, clean))
	return task, nil
}

// GetByID loads a task by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.CodingTask, error) {
	return s.tasks.GetByID(ctx, id)
}

// ListByUser lists every task owned by userID.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.CodingTask, error) {
	return s.tasks.ListByUser(ctx, userID)
}

func (s *Service) maybeCreatePR(ctx context.Context, task *domain.CodingTask) {
	pr, err := s.github.CreatePullRequest(ctx, githubclient.PullRequest{
		Owner: s.repoOwner,
		Repo:  s.repoName,
		Title: "[auto] " + task.Title,
		Body:  task.Description + "\n\n---\nOpened by " + prAuthor,
		Head:  "task/" + task.ID.String(),
		Base:  "main",
	})
	if err != nil {
		s.log.Warn(ctx, "taskservice: PR creation failed, continuing", "task_id", task.ID, "error", err)
		return
	}
	task.PRNumber = &pr.Number
	task.PRURL = &pr.HTMLURL
	if err := s.tasks.Save(ctx, task); err != nil {
		s.log.Warn(ctx, "taskservice: failed to persist PR reference", "task_id", task.ID, "error", err)
		return
	}
	s.publish(ctx, events.NewPullRequestCreatedEvent(task.ID.String(), pr.Number, pr.HTMLURL))
}

func (s *Service) publish(ctx context.Context, event any) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn(ctx, "taskservice: event publish failed", "error", err)
	}
}
