package domain

import (
	"time"

	"github.com/google/uuid"
)

// ABTestStatus is the lifecycle state of an ABTest.
type ABTestStatus string

const (
	ABTestActive    ABTestStatus = "Active"
	ABTestCompleted ABTestStatus = "Completed"
	ABTestCancelled ABTestStatus = "Cancelled"
)

// ABTest declares a comparison between two models for a (optionally
// filtered) task type.
type ABTest struct {
	ID             uuid.UUID
	Name           string
	ModelA         string
	ModelB         string
	TaskTypeFilter *TaskType
	TrafficPercent int // 0-100
	MinSamples     int
	Status         ABTestStatus
	StartDate      time.Time
	EndDate        *time.Time
}

// Matches reports whether the test applies to taskType: unfiltered tests
// match everything, and the test's end date (if any) must be in the future.
func (t ABTest) Matches(taskType TaskType, at time.Time) bool {
	if t.Status != ABTestActive {
		return false
	}
	if t.EndDate != nil && !at.Before(*t.EndDate) {
		return false
	}
	if t.TaskTypeFilter != nil && *t.TaskTypeFilter != taskType {
		return false
	}
	return true
}

// ABTestResult is one recorded outcome of a request routed through an
// ABTest.
type ABTestResult struct {
	ID           uuid.UUID
	TestID       uuid.UUID
	RequestID    string
	Variant      string // "A" or "B"
	Success      bool
	Duration     time.Duration
	Tokens       int
	Cost         float64
	QualityScore *float64
}

// Sentiment is the user's qualitative reaction recorded in a Feedback.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// Feedback is a user's rating of a task/execution outcome.
type Feedback struct {
	ID          uuid.UUID
	TaskID      uuid.UUID
	ExecutionID *uuid.UUID
	UserID      string
	Sentiment   Sentiment
	Rating      float64 // [0,1]
	Reason      string
	Context     map[string]string
	ProcedureID *string
	CreatedAt   time.Time
}
