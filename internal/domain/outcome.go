package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutcomeKind tells a caller how to read an Outcome.
type OutcomeKind string

// Outcome kinds
const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomePending   OutcomeKind = "processing"
)

// Outcome is what the producer returns to the request layer: either the
// worker's result, or a handle to poll later.
type Outcome struct {
	Kind   OutcomeKind     `json:"status"`
	JobID  uuid.UUID       `json:"job_id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Pending reports whether the job was still running when the wait ended.
func (o Outcome) Pending() bool {
	return o.Kind == OutcomePending
}

// DecodeResult unmarshals the worker result into v.
func (o Outcome) DecodeResult(v any) error {
	return json.Unmarshal(o.Result, v)
}

// JobRecord is the persisted state of a job, used for polling.
type JobRecord struct {
	ID        uuid.UUID       `json:"id"`
	Type      JobType         `json:"type"`
	Provider  ProviderKind    `json:"provider"`
	Status    JobStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
