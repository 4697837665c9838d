// Package repo defines the persistence abstractions the orchestration core
// depends on — TaskRepository and ExecutionRepository — plus in-memory
// implementations for tests and standalone runs. The core never depends on
// a concrete datastore; a production deployment supplies its own implementation
// of these interfaces.
package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/domain/orcherrors"
)

// TaskRepository persists CodingTasks.
type TaskRepository interface {
	Save(ctx context.Context, task *domain.CodingTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CodingTask, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.CodingTask, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionRepository persists TaskExecutions.
type ExecutionRepository interface {
	Save(ctx context.Context, exec *domain.TaskExecution) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TaskExecution, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskExecution, error)
}

// InMemoryTaskRepository is a mutex-guarded, process-local TaskRepository.
type InMemoryTaskRepository struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.CodingTask
}

// NewInMemoryTaskRepository constructs an empty InMemoryTaskRepository.
func NewInMemoryTaskRepository() *InMemoryTaskRepository {
	return &InMemoryTaskRepository{tasks: make(map[uuid.UUID]*domain.CodingTask)}
}

// Save upserts task, storing a defensive copy.
func (r *InMemoryTaskRepository) Save(_ context.Context, task *domain.CodingTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := *task
	r.tasks[task.ID] = &snapshot
	return nil
}

// GetByID returns a copy of the stored task, or a KindNotFound error.
func (r *InMemoryTaskRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.CodingTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, orcherrors.NotFound("task %s not found", id)
	}
	snapshot := *task
	return &snapshot, nil
}

// ListByUser returns copies of every task owned by userID, in no
// particular order.
func (r *InMemoryTaskRepository) ListByUser(_ context.Context, userID string) ([]*domain.CodingTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.CodingTask
	for _, task := range r.tasks {
		if task.UserID == userID {
			snapshot := *task
			out = append(out, &snapshot)
		}
	}
	return out, nil
}

// Delete removes a task, or returns a KindNotFound error if it is absent.
func (r *InMemoryTaskRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return orcherrors.NotFound("task %s not found", id)
	}
	delete(r.tasks, id)
	return nil
}

// InMemoryExecutionRepository is a mutex-guarded, process-local
// ExecutionRepository.
type InMemoryExecutionRepository struct {
	mu    sync.RWMutex
	execs map[uuid.UUID]*domain.TaskExecution
}

// NewInMemoryExecutionRepository constructs an empty
// InMemoryExecutionRepository.
func NewInMemoryExecutionRepository() *InMemoryExecutionRepository {
	return &InMemoryExecutionRepository{execs: make(map[uuid.UUID]*domain.TaskExecution)}
}

// Save upserts exec, storing a defensive copy.
func (r *InMemoryExecutionRepository) Save(_ context.Context, exec *domain.TaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := *exec
	r.execs[exec.ID] = &snapshot
	return nil
}

// GetByID returns a copy of the stored execution, or a KindNotFound error.
func (r *InMemoryExecutionRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.TaskExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.execs[id]
	if !ok {
		return nil, orcherrors.NotFound("execution %s not found", id)
	}
	snapshot := *exec
	return &snapshot, nil
}

// ListByTask returns copies of every execution for taskID, in no
// particular order.
func (r *InMemoryExecutionRepository) ListByTask(_ context.Context, taskID uuid.UUID) ([]*domain.TaskExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.TaskExecution
	for _, exec := range r.execs {
		if exec.TaskID == taskID {
			snapshot := *exec
			out = append(out, &snapshot)
		}
	}
	return out, nil
}
