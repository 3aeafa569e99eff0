package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
)

// JobEvent reports that a job reached a new status. Terminal events carry
// the worker's result or error message.
type JobEvent struct {
	// JobID identifies the job this event belongs to
	JobID uuid.UUID `json:"job_id"`

	// Status is the status the job moved to
	Status domain.JobStatus `json:"status"`

	// Result is the JSON-encoded worker result for completed jobs
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the failure reason for failed jobs
	Error string `json:"error,omitempty"`

	// Code classifies the failure, see domain.ErrorCode
	Code string `json:"code,omitempty"`

	// OccurredAt is the timestamp when the event was created
	OccurredAt time.Time `json:"occurred_at"`
}

// NewCompletedEvent creates the terminal event for a successful job.
func NewCompletedEvent(jobID uuid.UUID, result json.RawMessage) *JobEvent {
	return &JobEvent{
		JobID:      jobID,
		Status:     domain.JobStatusCompleted,
		Result:     result,
		OccurredAt: time.Now().UTC(),
	}
}

// NewFailedEvent creates the terminal event for a failed job.
func NewFailedEvent(jobID uuid.UUID, err error) *JobEvent {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &JobEvent{
		JobID:      jobID,
		Status:     domain.JobStatusFailed,
		Error:      msg,
		Code:       domain.ErrorCode(err),
		OccurredAt: time.Now().UTC(),
	}
}

// NewProcessingEvent creates the event sent when a worker claims a job.
func NewProcessingEvent(jobID uuid.UUID) *JobEvent {
	return &JobEvent{
		JobID:      jobID,
		Status:     domain.JobStatusProcessing,
		OccurredAt: time.Now().UTC(),
	}
}

// Err rebuilds the worker's failure as an error wrapping domain.ErrJobFailed
// and, when known, the sentinel named by Code. It returns nil unless the
// event reports a failure.
func (e *JobEvent) Err() error {
	if e.Status != domain.JobStatusFailed {
		return nil
	}
	if sentinel := domain.SentinelForCode(e.Code); sentinel != nil {
		return fmt.Errorf("%w: %w: %s", domain.ErrJobFailed, sentinel, e.Error)
	}
	return fmt.Errorf("%w: %s", domain.ErrJobFailed, e.Error)
}

// UnmarshalResult decodes the event result into the provided structure.
func (e *JobEvent) UnmarshalResult(v interface{}) error {
	return json.Unmarshal(e.Result, v)
}

// EventHandler defines an interface for components that react to every
// emitted event, such as the job record updater.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// Workers use it to report job completion without knowing who is waiting.
type EventEmitter interface {
	// EmitEvent runs the registered handlers and then delivers the event to
	// every subscriber of its job.
	EmitEvent(ctx context.Context, event *JobEvent) error
}

// Subscriber hands out per-job event streams.
type Subscriber interface {
	// Subscribe starts collecting events for jobID. Events emitted after
	// Subscribe returns are guaranteed to reach the subscription.
	Subscribe(ctx context.Context, jobID uuid.UUID) (*Subscription, error)
}

// Bus is an emitter that also hands out subscriptions.
type Bus interface {
	EventEmitter
	Subscriber
	RegisterHandler(handler EventHandler)
}
