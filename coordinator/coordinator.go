// Package coordinator implements the Execution Coordinator: it resolves a
// strategy, starts the task, and spawns a detached background goroutine —
// scoped to the coordinator's own process-lifetime context, never the HTTP
// request's — that runs the strategy to completion and reports the outcome
// through the task service, execution repository, and log stream.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderun/orchestrator/abtest"
	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/logstream"
	"github.com/coderun/orchestrator/modelperf"
	"github.com/coderun/orchestrator/modelselector"
	"github.com/coderun/orchestrator/repo"
	"github.com/coderun/orchestrator/strategy"
	"github.com/coderun/orchestrator/strategyselector"
	"github.com/coderun/orchestrator/taskservice"
	"github.com/coderun/orchestrator/telemetry"
)

// ContextLoader loads the file context a strategy needs for a task. Left
// abstract so the coordinator does not depend on a concrete source-control
// checkout.
type ContextLoader interface {
	Load(ctx context.Context, task *domain.CodingTask) (strategy.TaskExecutionContext, error)
}

// NoopContextLoader returns an empty TaskExecutionContext; useful for tests
// and tasks with no existing files.
type NoopContextLoader struct{}

// Load implements ContextLoader by returning an empty context.
func (NoopContextLoader) Load(context.Context, *domain.CodingTask) (strategy.TaskExecutionContext, error) {
	return strategy.TaskExecutionContext{}, nil
}

// Coordinator queues and runs task executions.
type Coordinator struct {
	tasks    *taskservice.Service
	execs    repo.ExecutionRepository
	taskRepo repo.TaskRepository
	selector *strategyselector.Selector
	modelsel *modelselector.Selector
	perf     *modelperf.Tracker
	abtests  *abtest.Engine
	loader   ContextLoader
	logs     *logstream.Service
	log      telemetry.Logger
	bgCtx    context.Context
	cancelBg context.CancelFunc
	wg       sync.WaitGroup
}

// Config wires the collaborators a Coordinator needs. Perf and ABTests may
// be nil, in which case outcomes are not recorded.
type Config struct {
	Tasks          *taskservice.Service
	Executions     repo.ExecutionRepository
	TaskRepository repo.TaskRepository
	Selector       *strategyselector.Selector
	ModelSelector  *modelselector.Selector
	Perf           *modelperf.Tracker
	ABTests        *abtest.Engine
	ContextLoader  ContextLoader
	Logs           *logstream.Service
	Logger         telemetry.Logger
}

// New constructs a Coordinator with its own process-lifetime context,
// independent of any HTTP request that later calls QueueExecution.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	loader := cfg.ContextLoader
	if loader == nil {
		loader = NoopContextLoader{}
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		tasks:    cfg.Tasks,
		execs:    cfg.Executions,
		taskRepo: cfg.TaskRepository,
		selector: cfg.Selector,
		modelsel: cfg.ModelSelector,
		perf:     cfg.Perf,
		abtests:  cfg.ABTests,
		loader:   loader,
		logs:     cfg.Logs,
		log:      logger,
		bgCtx:    bgCtx,
		cancelBg: cancel,
	}
}

// Shutdown cancels every in-flight background execution and waits for them
// to finish. Call once, at process shutdown.
func (c *Coordinator) Shutdown() {
	c.cancelBg()
	c.wg.Wait()
}

// QueueExecution resolves the strategy (honoring overrideStrategy if
// given), transitions the task to InProgress, creates a TaskExecution row,
// and spawns the background run. It returns the TaskExecution immediately;
// the strategy run itself happens off the caller's context.
func (c *Coordinator) QueueExecution(ctx context.Context, task *domain.CodingTask, overrideStrategy string) (*domain.TaskExecution, error) {
	st := c.selector.Select(ctx, task, overrideStrategy)

	sel := c.modelsel.SelectBestModel(ctx, task.Description, task.Type, task.Complexity, task.ID.String())

	exec := domain.NewTaskExecution(task.ID, st.Name(), sel.Model)
	if _, err := c.tasks.Start(ctx, task.ID, exec.ID, st.Name(), sel.Model); err != nil {
		return nil, err
	}

	if err := c.execs.Save(ctx, exec); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.run(exec.ID, task.ID, st, sel)

	return exec, nil
}

// run is the detached background sequence: log the start marker, reload
// the task, build its file context, run the strategy, and report the
// outcome — to the task service, execution record, performance tracker,
// and A/B engine — before closing the log stream.
func (c *Coordinator) run(executionID, taskID uuid.UUID, st strategy.Strategy, sel modelselector.Selection) {
	defer c.wg.Done()
	ctx := c.bgCtx

	execIDStr := executionID.String()
	c.logs.Write(ctx, execIDStr, fmt.Sprintf("status:starting strategy=%s", st.Name()))

	task, err := c.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		c.log.Error(ctx, "coordinator: failed to reload task, aborting execution", "task_id", taskID, "error", err)
		c.logs.Write(ctx, execIDStr, "status:failed error=task reload failed")
		c.logs.Complete(execIDStr)
		return
	}

	execCtx, err := c.loader.Load(ctx, task)
	if err != nil {
		c.log.Error(ctx, "coordinator: failed to build execution context", "task_id", taskID, "error", err)
		c.finishFailed(ctx, executionID, taskID, st.Name(), 0, 0, 0, "context load failed: "+err.Error())
		return
	}

	result := c.runStrategySafely(ctx, st, task, execCtx)

	if result.Success {
		c.finishSucceeded(ctx, executionID, taskID, st.Name(), result)
	} else {
		errMsg := "execution failed"
		if len(result.Errors) > 0 {
			errMsg = result.Errors[0]
		}
		c.finishFailed(ctx, executionID, taskID, st.Name(), result.TotalTokens, result.TotalCost, result.Duration, errMsg)
	}

	c.recordOutcome(ctx, task, sel, result)

	c.logs.Complete(execIDStr)
}

// recordOutcome feeds the execution's result into the performance tracker
// and, when the model was assigned by an active A/B test, into the A/B
// engine, so GetBest and winner determination accumulate real samples.
func (c *Coordinator) recordOutcome(ctx context.Context, task *domain.CodingTask, sel modelselector.Selection, result strategy.ExecutionResult) {
	if c.perf != nil {
		c.perf.RecordExecution(modelperf.ExecutionResult{
			ModelName:  sel.Model,
			TaskType:   task.Type,
			Complexity: task.Complexity,
			Success:    result.Success,
			Tokens:     result.TotalTokens,
			Cost:       result.TotalCost,
			Duration:   result.Duration.Seconds(),
		})
	}
	if c.abtests == nil || !sel.IsABTest {
		return
	}
	testID, err := uuid.Parse(sel.ABTestID)
	if err != nil {
		c.log.Warn(ctx, "coordinator: invalid A/B test id on selection", "test_id", sel.ABTestID)
		return
	}
	abResult := domain.ABTestResult{
		RequestID: task.ID.String(),
		Success:   result.Success,
		Duration:  result.Duration,
		Tokens:    result.TotalTokens,
		Cost:      result.TotalCost,
	}
	if err := c.abtests.RecordResult(testID, sel.ABVariant, abResult); err != nil {
		c.log.Warn(ctx, "coordinator: failed to record A/B result", "test_id", sel.ABTestID, "error", err)
	}
}

// runStrategySafely recovers from a panicking strategy so an unexpected
// exception degrades to a failed execution rather than crashing the
// background worker.
func (c *Coordinator) runStrategySafely(ctx context.Context, st strategy.Strategy, task *domain.CodingTask, execCtx strategy.TaskExecutionContext) (result strategy.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error(ctx, "coordinator: strategy panicked", "task_id", task.ID, "panic", r)
			result = strategy.ExecutionResult{Success: false, Errors: []string{fmt.Sprintf("unexpected exception: %v", r)}}
		}
	}()
	return st.Execute(ctx, task, execCtx)
}

func (c *Coordinator) finishSucceeded(ctx context.Context, executionID, taskID uuid.UUID, strategyName string, result strategy.ExecutionResult) {
	exec, err := c.execs.GetByID(ctx, executionID)
	if err == nil {
		finished := time.Now()
		exec.Success = true
		exec.Tokens = result.TotalTokens
		exec.Cost = result.TotalCost
		exec.Duration = result.Duration
		exec.FinishedAt = &finished
		if saveErr := c.execs.Save(ctx, exec); saveErr != nil {
			c.log.Error(ctx, "coordinator: failed to persist execution record", "execution_id", executionID, "error", saveErr)
		}
	}

	if _, err := c.tasks.Complete(ctx, taskID, executionID, strategyName, result.TotalTokens, result.TotalCost, result.Duration); err != nil {
		c.log.Error(ctx, "coordinator: task service Complete failed", "task_id", taskID, "error", err)
	}

	c.logs.Write(ctx, executionID.String(), fmt.Sprintf("status:success tokens=%d cost=%.4f durationMs=%d", result.TotalTokens, result.TotalCost, result.Duration.Milliseconds()))
}

func (c *Coordinator) finishFailed(ctx context.Context, executionID, taskID uuid.UUID, strategyName string, tokens int, cost float64, duration time.Duration, errMsg string) {
	exec, err := c.execs.GetByID(ctx, executionID)
	if err == nil {
		finished := time.Now()
		exec.Success = false
		exec.Tokens = tokens
		exec.Cost = cost
		exec.Duration = duration
		exec.Error = errMsg
		exec.FinishedAt = &finished
		if saveErr := c.execs.Save(ctx, exec); saveErr != nil {
			c.log.Error(ctx, "coordinator: failed to persist execution record", "execution_id", executionID, "error", saveErr)
		}
	}

	if _, err := c.tasks.Fail(ctx, taskID, executionID, strategyName, tokens, cost, duration, errMsg); err != nil {
		c.log.Error(ctx, "coordinator: task service Fail failed", "task_id", taskID, "error", err)
	}

	// Newlines are stripped so the log line never wraps mid-record.
	c.logs.Write(ctx, executionID.String(), fmt.Sprintf("status:failed error=%s", stripNewlines(errMsg)))
}

func stripNewlines(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' {
			out = append(out, ' ')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
