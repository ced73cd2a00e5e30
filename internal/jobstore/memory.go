// internal/jobstore/memory.go
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"insight-workflows/internal/models"
)

// MemoryStore keeps jobs in process memory. Each job carries a done channel
// closed on its terminal transition, so AwaitTerminal can block with a
// bounded timeout instead of busy-waiting.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*memoryJob
}

type memoryJob struct {
	job  *models.WorkflowJob
	done chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*memoryJob),
	}
}

func (s *MemoryStore) Create(ctx context.Context, stageType models.StageType, input json.RawMessage) (*models.WorkflowJob, error) {
	now := time.Now().UTC()
	job := &models.WorkflowJob{
		RequestID: uuid.New().String(),
		StageType: stageType,
		State:     models.JobQueued,
		Input:     append(json.RawMessage(nil), input...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.RequestID] = &memoryJob{
		job:  job,
		done: make(chan struct{}),
	}
	s.mu.Unlock()

	return job.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, requestID string) (*models.WorkflowJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return entry.job.Clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, requestID string, from, to models.JobState, outcome *Outcome) (*models.WorkflowJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}

	if err := validateTransition(entry.job, from, to, outcome); err != nil {
		return nil, err
	}

	applyTransition(entry.job, to, outcome)
	entry.job.UpdatedAt = time.Now().UTC()

	if to.Terminal() {
		close(entry.done)
	}

	return entry.job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, stageType models.StageType) ([]*models.WorkflowJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WorkflowJob
	for _, entry := range s.jobs {
		if stageType == "" || entry.job.StageType == stageType {
			out = append(out, entry.job.Clone())
		}
	}
	return out, nil
}

// AwaitTerminal blocks until the job reaches a terminal state or the context
// expires. A job already terminal returns immediately.
func (s *MemoryStore) AwaitTerminal(ctx context.Context, requestID string) (*models.WorkflowJob, error) {
	s.mu.RLock()
	entry, ok := s.jobs[requestID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}

	select {
	case <-entry.done:
		return s.Get(ctx, requestID)
	case <-ctx.Done():
		// Not an error: the caller gets the current (non-terminal) snapshot.
		return s.Get(context.Background(), requestID)
	}
}
