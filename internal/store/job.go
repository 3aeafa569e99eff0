package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
)

// JobStore persists job records so callers that received a pending outcome
// can poll for the result later.
type JobStore interface {
	// SaveJob inserts a new job record.
	// Returns ErrJobExists if a record with the same id is already stored.
	SaveJob(ctx context.Context, job *domain.JobRecord) error

	// UpdateJobStatus records a status transition together with the
	// worker's result or error message. Updating an unknown job is a no-op.
	UpdateJobStatus(
		ctx context.Context,
		id uuid.UUID,
		status domain.JobStatus,
		result json.RawMessage,
		errorMsg string,
	) error

	// GetJob retrieves a job record by id.
	// Returns ErrJobNotFound if the record does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
}
