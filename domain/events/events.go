// Package events defines the domain event envelope and the concrete event
// payloads the orchestration core publishes to the message bus, plus the
// Publisher abstraction consumers implement.
//
// Every event embeds a BaseEvent envelope carrying the event id, type,
// timestamp, and correlation id, with typed payload fields per event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BaseEvent carries the fields common to every domain event.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
}

func newBase(eventType, correlationID string) BaseEvent {
	return BaseEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// TaskCreatedEvent is published when a CodingTask is created. Classification
// fields are empty until the task has been classified.
type TaskCreatedEvent struct {
	BaseEvent
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
	Complexity  string `json:"complexity,omitempty"`
}

// NewTaskCreatedEvent constructs a TaskCreatedEvent for the given task id.
func NewTaskCreatedEvent(taskID, title, description string) TaskCreatedEvent {
	return TaskCreatedEvent{
		BaseEvent:   newBase("TaskCreatedEvent", taskID),
		TaskID:      taskID,
		Title:       title,
		Description: description,
	}
}

// TaskStartedEvent is published when a task execution begins.
type TaskStartedEvent struct {
	BaseEvent
	TaskID      string `json:"task_id"`
	ExecutionID string `json:"execution_id"`
	Strategy    string `json:"strategy"`
	Model       string `json:"model"`
}

// NewTaskStartedEvent constructs a TaskStartedEvent.
func NewTaskStartedEvent(taskID, executionID, strategy, model string) TaskStartedEvent {
	return TaskStartedEvent{
		BaseEvent:   newBase("TaskStartedEvent", taskID),
		TaskID:      taskID,
		ExecutionID: executionID,
		Strategy:    strategy,
		Model:       model,
	}
}

// TaskCompletedEvent is published when a task execution succeeds.
type TaskCompletedEvent struct {
	BaseEvent
	TaskID      string        `json:"task_id"`
	ExecutionID string        `json:"execution_id"`
	Strategy    string        `json:"strategy"`
	Tokens      int           `json:"tokens"`
	Cost        float64       `json:"cost"`
	Duration    time.Duration `json:"duration"`
}

// NewTaskCompletedEvent constructs a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID, executionID, strategy string, tokens int, cost float64, duration time.Duration) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent:   newBase("TaskCompletedEvent", taskID),
		TaskID:      taskID,
		ExecutionID: executionID,
		Strategy:    strategy,
		Tokens:      tokens,
		Cost:        cost,
		Duration:    duration,
	}
}

// TaskFailedEvent is published when a task execution fails.
type TaskFailedEvent struct {
	BaseEvent
	TaskID      string        `json:"task_id"`
	ExecutionID string        `json:"execution_id"`
	Strategy    string        `json:"strategy"`
	Tokens      int           `json:"tokens"`
	Cost        float64       `json:"cost"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error"`
}

// NewTaskFailedEvent constructs a TaskFailedEvent.
func NewTaskFailedEvent(taskID, executionID, strategy string, tokens int, cost float64, duration time.Duration, errMsg string) TaskFailedEvent {
	return TaskFailedEvent{
		BaseEvent:   newBase("TaskFailedEvent", taskID),
		TaskID:      taskID,
		ExecutionID: executionID,
		Strategy:    strategy,
		Tokens:      tokens,
		Cost:        cost,
		Duration:    duration,
		Error:       errMsg,
	}
}

// PullRequestCreatedEvent is published when the task service successfully
// opens a pull request for a completed task.
type PullRequestCreatedEvent struct {
	BaseEvent
	TaskID   string `json:"task_id"`
	PRNumber int    `json:"pr_number"`
	PRURL    string `json:"pr_url"`
}

// NewPullRequestCreatedEvent constructs a PullRequestCreatedEvent.
func NewPullRequestCreatedEvent(taskID string, prNumber int, prURL string) PullRequestCreatedEvent {
	return PullRequestCreatedEvent{
		BaseEvent: newBase("PullRequestCreatedEvent", taskID),
		TaskID:    taskID,
		PRNumber:  prNumber,
		PRURL:     prURL,
	}
}

// Publisher publishes domain events to the message bus. The core never
// depends on a concrete broker; it only depends on this interface.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// NoopPublisher discards every event. Useful for tests and standalone runs.
type NoopPublisher struct{}

// Publish implements Publisher by discarding the event.
func (NoopPublisher) Publish(context.Context, any) error { return nil }

// RecordingPublisher accumulates published events in order, for tests that
// assert on event ordering invariants.
type RecordingPublisher struct {
	Events []any
}

// Publish implements Publisher by appending the event to Events.
func (p *RecordingPublisher) Publish(_ context.Context, event any) error {
	p.Events = append(p.Events, event)
	return nil
}
