package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
)

// MemoryJobStore keeps job records in process memory. It backs the
// single-process "memory" queue mode and doubles as a test fake: each
// method can be overridden through its Fn field.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]domain.JobRecord
	now  func() time.Time

	SaveFn         func(ctx context.Context, job *domain.JobRecord) error
	UpdateStatusFn func(ctx context.Context, id uuid.UUID, status domain.JobStatus, result json.RawMessage, errorMsg string) error
	GetFn          func(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[uuid.UUID]domain.JobRecord),
		now:  time.Now,
	}
}

// SaveJob implements JobStore.
func (s *MemoryJobStore) SaveJob(ctx context.Context, job *domain.JobRecord) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrJobExists
	}
	rec := *job
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt
	s.jobs[job.ID] = rec
	return nil
}

// UpdateJobStatus implements JobStore.
func (s *MemoryJobStore) UpdateJobStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	result json.RawMessage,
	errorMsg string,
) error {
	if s.UpdateStatusFn != nil {
		return s.UpdateStatusFn(ctx, id, status, result, errorMsg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.jobs[id]
	if !exists {
		return nil
	}
	rec.Status = status
	if result != nil {
		rec.Result = append(json.RawMessage(nil), result...)
	}
	rec.Error = errorMsg
	rec.UpdatedAt = s.now().UTC()
	s.jobs[id] = rec
	return nil
}

// GetJob implements JobStore.
func (s *MemoryJobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	return &rec, nil
}
