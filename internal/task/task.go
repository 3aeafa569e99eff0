package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/storage"
)

// ErrQueueClosed is returned by queue operations after Close.
var ErrQueueClosed = errors.New("job queue is closed")

// Job is the message carried by the queue. Its JSON encoding is shared by
// every producer and worker process and must stay stable.
type Job struct {
	ID        uuid.UUID           `json:"id"`
	Type      domain.JobType      `json:"type"`
	Provider  domain.ProviderKind `json:"provider"`
	Payload   json.RawMessage     `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewJob creates a Job with a fresh id and the JSON-encoded payload.
func NewJob(jobType domain.JobType, provider domain.ProviderKind, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}

	return &Job{
		ID:        uuid.New(),
		Type:      jobType,
		Provider:  provider,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodeJob parses a queue message body.
func DecodeJob(body []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	if job.ID == uuid.Nil {
		return nil, errors.New("failed to decode job: missing id")
	}
	return &job, nil
}

// Encode returns the wire form of the job.
func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalPayload decodes the job payload into the provided structure.
func (j *Job) UnmarshalPayload(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Delivery is one received queue message. It must be acknowledged once the
// job it carries has reached a terminal state.
type Delivery struct {
	// Body is the encoded Job exactly as published.
	Body []byte

	// ReceivedAt is when the consumer claimed the message.
	ReceivedAt time.Time
}

// QueueWriter provides publish access to the job queue.
type QueueWriter interface {
	// Publish appends job to the queue. It never blocks on queue depth.
	Publish(ctx context.Context, job *Job) error
}

// QueueReader provides consume access to the job queue.
type QueueReader interface {
	// Receive blocks until a job is available, ctx is done or the queue is
	// closed. The delivery stays owned by the caller until Ack.
	Receive(ctx context.Context) (*Delivery, error)

	// Ack removes a delivery from the queue for good.
	Ack(ctx context.Context, d *Delivery) error
}

// Queue is a durable, named job channel.
type Queue interface {
	QueueWriter
	QueueReader

	// Depth returns the number of jobs waiting to be received.
	Depth(ctx context.Context) (int64, error)

	// Close stops the queue. Blocked receivers return ErrQueueClosed.
	Close() error
}

// FileStager persists uploads to scratch storage and hands them back to
// workers. staging.Stager is the production implementation.
type FileStager interface {
	Stage(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileStagingRef, error)
	Open(ref domain.FileStagingRef) (domain.File, error)
	Release(ref domain.FileStagingRef) error
	ReleaseAll(refs []domain.FileStagingRef)
}

// ProviderSource resolves provider selectors and kinds to storage providers.
// storage.Registry is the production implementation.
type ProviderSource interface {
	Resolve(selector string) (domain.ProviderKind, error)
	Get(kind domain.ProviderKind) (storage.Provider, error)
}
