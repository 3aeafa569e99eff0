package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
)

// JobAcceptedResponse is returned with 202 when a job outlives the wait window.
type JobAcceptedResponse struct {
	JobID  uuid.UUID          `json:"job_id"`
	Status domain.OutcomeKind `json:"status"`
}

// JobResultResponse is returned with 200 when a job finished within the wait window.
type JobResultResponse struct {
	JobID  uuid.UUID          `json:"job_id"`
	Status domain.OutcomeKind `json:"status"`
	Result json.RawMessage    `json:"result"`
}

// JobStatusResponse is the polling view of a job record.
type JobStatusResponse struct {
	JobID     uuid.UUID           `json:"job_id"`
	Type      domain.JobType      `json:"type"`
	Provider  domain.ProviderKind `json:"provider"`
	Status    domain.JobStatus    `json:"status"`
	Result    json.RawMessage     `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// DeleteFileRequest holds the query parameters of a delete request.
type DeleteFileRequest struct {
	Reference string `query:"ref" validate:"required,max=1024"`
}

// JobPathRequest holds the path parameters of a polling request.
type JobPathRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

func newJobStatusResponse(rec *domain.JobRecord) JobStatusResponse {
	return JobStatusResponse{
		JobID:     rec.ID,
		Type:      rec.Type,
		Provider:  rec.Provider,
		Status:    rec.Status,
		Result:    rec.Result,
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
