package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
	"github.com/phrazzld/filepipe/internal/store"
)

// JobStore keeps job records in Redis with a TTL, for deployments without
// a database.
type JobStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewJobStore creates a JobStore whose keys live under the queue name and
// expire ttl after their last update.
func NewJobStore(client redis.UniversalClient, queueName string, ttl time.Duration) *JobStore {
	return &JobStore{
		client: client,
		prefix: queueName + ":job:",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *JobStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// SaveJob implements store.JobStore.
func (s *JobStore) SaveJob(ctx context.Context, job *domain.JobRecord) error {
	rec := *job
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	rec.UpdatedAt = rec.CreatedAt

	data, err := json.Marshal(rec)
	if err != nil {
		return store.NewStoreError("job", "save", "encode record", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(job.ID), data, s.ttl).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to save job",
			"job_id", job.ID,
			"error", err)
		return store.NewStoreError("job", "save", "redis write failed", err)
	}
	if !ok {
		return store.ErrJobExists
	}
	return nil
}

// UpdateJobStatus implements store.JobStore. The record's TTL restarts.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	result json.RawMessage,
	errorMsg string,
) error {
	rec, err := s.GetJob(ctx, id)
	if errors.Is(err, store.ErrJobNotFound) {
		logger.FromContext(ctx).Warn("no job found with ID to update status", "job_id", id)
		return nil
	}
	if err != nil {
		return err
	}

	rec.Status = status
	if result != nil {
		rec.Result = result
	}
	rec.Error = errorMsg
	rec.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return store.NewStoreError("job", "update", "encode record", err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return store.NewStoreError("job", "update", "redis write failed", err)
	}
	return nil
}

// GetJob implements store.JobStore.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, store.NewStoreError("job", "get", "redis read failed", err)
	}

	var rec domain.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, store.NewStoreError("job", "get", fmt.Sprintf("decode record %s", id), err)
	}
	return &rec, nil
}

// Ensure JobStore implements store.JobStore
var _ store.JobStore = (*JobStore)(nil)
