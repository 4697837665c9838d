// Package domain defines the core entities of the task orchestration core:
// CodingTask, TaskExecution, CodeChange, and the agent-facing plan types
// (SubTask, TaskPlan, AgentResult). These types have no persistence or
// transport concerns; repositories and HTTP handlers translate to and from
// them at the boundary.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType classifies the kind of work a CodingTask represents.
type TaskType string

const (
	TaskTypeBugFix        TaskType = "BugFix"
	TaskTypeFeature       TaskType = "Feature"
	TaskTypeRefactor      TaskType = "Refactor"
	TaskTypeDocumentation TaskType = "Documentation"
	TaskTypeTest          TaskType = "Test"
	TaskTypeDeployment    TaskType = "Deployment"
)

// Complexity is the classifier- or heuristic-assigned difficulty tier of a task.
type Complexity string

const (
	ComplexitySimple  Complexity = "Simple"
	ComplexityMedium  Complexity = "Medium"
	ComplexityComplex Complexity = "Complex"
	ComplexityEpic    Complexity = "Epic"
)

// Status is the lifecycle state of a CodingTask.
type Status string

const (
	StatusPending     Status = "Pending"
	StatusClassifying Status = "Classifying"
	StatusInProgress  Status = "InProgress"
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
	StatusCancelled   Status = "Cancelled"
)

// IsTerminal reports whether s is one of the terminal statuses a task never
// leaves; a later execution of the task does not change its status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CodingTask is the unit of work accepted by the orchestration core.
type CodingTask struct {
	ID          uuid.UUID
	UserID      string
	Title       string
	Description string
	Type        TaskType
	Complexity  Complexity
	Status      Status
	CreatedAt   time.Time
	CompletedAt *time.Time
	PRNumber    *int
	PRURL       *string
}

// NewCodingTask constructs a task in its initial Pending status. Complexity
// and Type are left unset; the strategy selector and classifier populate
// them later.
func NewCodingTask(userID, title, description string) *CodingTask {
	return &CodingTask{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

// ChangeKind enumerates the kind of mutation a CodeChange represents.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "Create"
	ChangeModify ChangeKind = "Modify"
	ChangeDelete ChangeKind = "Delete"
)

// CodeChange is a proposed modification to a single file.
type CodeChange struct {
	FilePath string
	Language string
	Content  string
	Kind     ChangeKind
}

// Validate checks the structural invariants of a change: a non-empty file
// path, and non-empty content unless the change is a delete.
func (c CodeChange) Validate() error {
	if c.FilePath == "" {
		return errInvalidChange("file path is empty")
	}
	if c.Kind != ChangeDelete && c.Content == "" {
		return errInvalidChange("content is empty for a non-delete change")
	}
	return nil
}

type invalidChangeError string

func (e invalidChangeError) Error() string { return string(e) }

func errInvalidChange(msg string) error { return invalidChangeError(msg) }

// TaskExecution records one attempt at fulfilling a CodingTask.
type TaskExecution struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	Strategy   string
	Model      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Success    bool
	Tokens     int
	Cost       float64
	Duration   time.Duration
	Error      string
}

// NewTaskExecution creates an execution row for a freshly queued run.
func NewTaskExecution(taskID uuid.UUID, strategy, model string) *TaskExecution {
	return &TaskExecution{
		ID:        uuid.New(),
		TaskID:    taskID,
		Strategy:  strategy,
		Model:     model,
		StartedAt: time.Now(),
	}
}

// Complete marks the execution as finished, recording outcome metrics.
func (e *TaskExecution) Complete(success bool, tokens int, cost float64, errMsg string) {
	now := time.Now()
	e.FinishedAt = &now
	e.Success = success
	e.Tokens = tokens
	e.Cost = cost
	e.Duration = now.Sub(e.StartedAt)
	e.Error = errMsg
}

// SubTask is a planner-produced work item in a MultiAgent TaskPlan.
type SubTask struct {
	ID                  string
	Title               string
	Description         string
	AffectedFiles       []string
	EstimatedComplexity int // 1-10
	DependsOn           []string
}

// TaskPlan is the Planner agent's output: an ordered list of SubTasks plus a
// free-text strategy note.
type TaskPlan struct {
	SubTasks     []SubTask
	StrategyNote string
}

// ValidateAcyclic checks that the subtask dependency graph is acyclic and
// that every dependency id resolves to another subtask in the same plan.
func (p TaskPlan) ValidateAcyclic() error {
	ids := make(map[string]bool, len(p.SubTasks))
	for _, st := range p.SubTasks {
		ids[st.ID] = true
	}
	for _, st := range p.SubTasks {
		for _, dep := range st.DependsOn {
			if !ids[dep] {
				return errInvalidChange("subtask " + st.ID + " depends on unknown subtask " + dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.SubTasks))
	byID := make(map[string]SubTask, len(p.SubTasks))
	for _, st := range p.SubTasks {
		byID[st.ID] = st
	}
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			return errInvalidChange("cyclic subtask dependency detected at " + id)
		case black:
			return nil
		}
		color[id] = gray
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for _, st := range p.SubTasks {
		if err := visit(st.ID); err != nil {
			return err
		}
	}
	return nil
}

// AgentResult is the uniform output envelope returned by every agent role
// (Planner, Coder, Reviewer, Tester) in the MultiAgent pipeline.
type AgentResult struct {
	AgentName string
	Success   bool
	Changes   []CodeChange
	Tokens    int
	Cost      float64
	Duration  time.Duration
	Output    any
	Errors    []string
}

// Capability is a bitmask of the task kinds a model may be used for.
type Capability uint8

const (
	CapabilityCodeGeneration Capability = 1 << iota
	CapabilityChatCompletion
	CapabilityAnalysis
	CapabilityReview
	CapabilityDocumentation
	CapabilityTesting

	CapabilityAll = CapabilityCodeGeneration | CapabilityChatCompletion | CapabilityAnalysis |
		CapabilityReview | CapabilityDocumentation | CapabilityTesting
)

// Has reports whether c includes every capability in want.
func (c Capability) Has(want Capability) bool { return c&want == want }

// ModelInfo describes one model known to the model registry.
type ModelInfo struct {
	Name         string
	Provider     string
	DisplayName  string
	Capabilities Capability
	Available    bool
	LastUpdated  time.Time
}

// ModelPerformanceMetrics is the per-model rolling aggregate maintained by
// the performance tracker.
type ModelPerformanceMetrics struct {
	ModelName       string
	Executions      int
	Successes       int
	AvgTokens       float64
	AvgCost         float64
	AvgDuration     time.Duration
	AvgQualityScore *float64 // optional, [1,10]
	LastUpdated     time.Time

	// Breakdown is keyed by "TaskType|Complexity" and holds per-bucket
	// execution/success counts used by GetBest's min-sample floor.
	Breakdown map[string]*SuccessBucket
}

// SuccessBucket tracks executions/successes for one (taskType, complexity)
// pair, plus the cost/duration needed for GetBest's tie-breaking.
type SuccessBucket struct {
	Executions int
	Successes  int
	TotalCost  float64
	TotalDur   time.Duration
}

// SuccessRate returns Successes/Executions, or 0 when there have been no
// executions yet.
func (b *SuccessBucket) SuccessRate() float64 {
	if b.Executions == 0 {
		return 0
	}
	return float64(b.Successes) / float64(b.Executions)
}

// BucketKey builds the Breakdown map key for a (taskType, complexity) pair.
func BucketKey(taskType TaskType, complexity Complexity) string {
	return string(taskType) + "|" + string(complexity)
}
