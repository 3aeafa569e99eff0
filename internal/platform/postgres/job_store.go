package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
	"github.com/phrazzld/filepipe/internal/store"
)

// PostgresJobStore implements store.JobStore using PostgreSQL.
type PostgresJobStore struct {
	db  store.DBTX
	now func() time.Time
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a store that runs its queries in tx.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) *PostgresJobStore {
	return &PostgresJobStore{db: tx, now: s.now}
}

// SaveJob persists a new job record.
func (s *PostgresJobStore) SaveJob(ctx context.Context, job *domain.JobRecord) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO jobs (id, type, provider, status, result, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.Provider,
		job.Status,
		nullableJSON(job.Result),
		nullableString(job.Error),
		createdAt,
		createdAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrJobExists, err)
		}
		log.Error("failed to save job",
			"job_id", job.ID,
			"job_type", job.Type,
			"error", err)
		return fmt.Errorf("failed to save job to database: %w", MapError(err))
	}

	return nil
}

// UpdateJobStatus moves a job to status. A missing job is a no-op.
func (s *PostgresJobStore) UpdateJobStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	result json.RawMessage,
	errorMsg string,
) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1, result = COALESCE($2::jsonb, result), error_message = $3, updated_at = $4
		WHERE id = $5
	`

	res, err := s.db.ExecContext(ctx, query,
		status,
		nullableJSON(result),
		nullableString(errorMsg),
		s.now(),
		id,
	)
	if err != nil {
		log.Error("failed to update job status",
			"job_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update job status: %w", MapError(err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		log.Warn("no job found with ID to update status", "job_id", id)
	}

	return nil
}

// GetJob loads the job record with the given id.
func (s *PostgresJobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	query := `
		SELECT id, type, provider, status, result, error_message, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var (
		rec      domain.JobRecord
		result   []byte
		errorMsg sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Type,
		&rec.Provider,
		&rec.Status,
		&result,
		&errorMsg,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get job",
			"job_id", id,
			"error", err)
		return nil, fmt.Errorf("failed to get job: %w", MapError(err))
	}

	if len(result) > 0 {
		rec.Result = json.RawMessage(result)
	}
	rec.Error = errorMsg.String
	return &rec, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure PostgresJobStore implements store.JobStore
var _ store.JobStore = (*PostgresJobStore)(nil)
