package feedback

import (
	"context"
	"sync"

	"github.com/coderun/orchestrator/domain"
)

// InMemoryRepository is a mutex-guarded, process-local Repository for tests
// and standalone runs; a production deployment supplies its own
// implementation backed by its feedback store.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []domain.Feedback
}

// NewInMemoryRepository constructs an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Save appends a copy of fb.
func (r *InMemoryRepository) Save(_ context.Context, fb *domain.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *fb)
	return nil
}

// ListByTask returns every feedback record for taskID, in insertion order.
func (r *InMemoryRepository) ListByTask(_ context.Context, taskID string) ([]domain.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Feedback
	for _, fb := range r.records {
		if fb.TaskID.String() == taskID {
			out = append(out, fb)
		}
	}
	return out, nil
}
