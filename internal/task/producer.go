package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/events"
	"github.com/phrazzld/filepipe/internal/store"
)

// DefaultWaitTimeout is how long Enqueue waits for a job before handing back
// a pending outcome.
const DefaultWaitTimeout = 5 * time.Second

// ProducerConfig holds configuration for the producer
type ProducerConfig struct {
	// WaitTimeout bounds how long Enqueue waits for the job to finish.
	// If zero or negative, defaults to DefaultWaitTimeout.
	WaitTimeout time.Duration
}

// Producer is the entry point the request layer uses to submit file jobs.
type Producer struct {
	stager      FileStager
	queue       QueueWriter
	subscriber  events.Subscriber
	store       store.JobStore
	providers   ProviderSource
	waitTimeout time.Duration
	logger      *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(
	stager FileStager,
	queue QueueWriter,
	subscriber events.Subscriber,
	jobStore store.JobStore,
	providers ProviderSource,
	config ProducerConfig,
	logger *slog.Logger,
) *Producer {
	wait := config.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	return &Producer{
		stager:      stager,
		queue:       queue,
		subscriber:  subscriber,
		store:       jobStore,
		providers:   providers,
		waitTimeout: wait,
		logger:      logger.With("component", "producer"),
	}
}

// WaitTimeout returns the configured hybrid wait bound.
func (p *Producer) WaitTimeout() time.Duration {
	return p.waitTimeout
}

// Enqueue stages the files in raw, publishes a job and waits up to the
// configured timeout for it to finish.
//
// A job that completes in time yields a completed outcome carrying the
// worker's result. A job that fails in time yields a failed outcome together
// with an error wrapping domain.ErrJobFailed. Otherwise the outcome is pending
// and the job keeps running; its result can be fetched later with Poll.
// Validation and staging errors are returned before anything is enqueued.
func (p *Producer) Enqueue(
	ctx context.Context,
	jobType domain.JobType,
	providerSelector string,
	raw domain.RawPayload,
) (domain.Outcome, error) {
	provider, err := p.providers.Resolve(providerSelector)
	if err != nil {
		return domain.Outcome{}, err
	}

	payload, refs, err := p.buildPayload(ctx, jobType, raw)
	if err != nil {
		return domain.Outcome{}, err
	}

	job, err := NewJob(jobType, provider, payload)
	if err != nil {
		p.release(refs)
		return domain.Outcome{}, err
	}

	log := p.logger.With("job_id", job.ID, "job_type", jobType, "provider", provider)

	if err := p.store.SaveJob(ctx, &domain.JobRecord{
		ID:        job.ID,
		Type:      job.Type,
		Provider:  job.Provider,
		Status:    domain.JobStatusPending,
		CreatedAt: job.CreatedAt,
	}); err != nil {
		p.release(refs)
		return domain.Outcome{}, fmt.Errorf("failed to save job record: %w", err)
	}

	// subscribe before publishing so a fast worker cannot finish unseen
	sub, err := p.subscriber.Subscribe(ctx, job.ID)
	if err != nil {
		p.abandon(ctx, job, refs, err)
		return domain.Outcome{}, fmt.Errorf("failed to subscribe to job events: %w", err)
	}
	defer sub.Close()

	if err := p.queue.Publish(ctx, job); err != nil {
		p.abandon(ctx, job, refs, err)
		return domain.Outcome{}, fmt.Errorf("failed to publish job: %w", err)
	}
	log.Debug("job published", "staged_files", len(refs))

	return p.wait(ctx, job.ID, sub, log)
}

// wait races the job's terminal event against the timeout. Timing out does
// not cancel the job.
func (p *Producer) wait(ctx context.Context, id uuid.UUID, sub *events.Subscription, log *slog.Logger) (domain.Outcome, error) {
	timer := time.NewTimer(p.waitTimeout)
	defer timer.Stop()

	for {
		select {
		case event := <-sub.C:
			if !event.Status.Terminal() {
				continue
			}
			switch event.Status {
			case domain.JobStatusCompleted:
				log.Debug("job completed within wait window")
				return domain.Outcome{
					Kind:   domain.OutcomeCompleted,
					JobID:  id,
					Result: event.Result,
				}, nil
			case domain.JobStatusFailed:
				log.Debug("job failed within wait window", "error", event.Error)
				return domain.Outcome{
					Kind:  domain.OutcomeFailed,
					JobID: id,
					Error: event.Error,
				}, event.Err()
			}

		case <-timer.C:
			log.Info("job still running after wait window, returning job id",
				"wait_timeout", p.waitTimeout)
			return domain.Outcome{Kind: domain.OutcomePending, JobID: id}, nil

		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		}
	}
}

// Poll returns the stored state of a job.
func (p *Producer) Poll(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	rec, err := p.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return rec, nil
}

// buildPayload validates raw for jobType and stages its files. On error no
// staged file is left behind.
func (p *Producer) buildPayload(
	ctx context.Context,
	jobType domain.JobType,
	raw domain.RawPayload,
) (interface{}, []domain.FileStagingRef, error) {
	var refs []domain.FileStagingRef
	stage := func(file domain.File, opts domain.UploadOptions) (domain.FileStagingRef, error) {
		ref, err := p.stager.Stage(ctx, file, opts)
		if err != nil {
			p.release(refs)
			return domain.FileStagingRef{}, err
		}
		refs = append(refs, ref)
		return ref, nil
	}

	switch jobType {
	case domain.JobTypeUploadSingle:
		if raw.File == nil {
			return nil, nil, domain.NewValidationError("file", "is required")
		}
		ref, err := stage(*raw.File, raw.Options)
		if err != nil {
			return nil, nil, err
		}
		return domain.SinglePayload{File: ref}, refs, nil

	case domain.JobTypeUploadMultiple:
		if len(raw.Files) == 0 {
			return nil, nil, domain.NewValidationError("files", "must contain at least one file")
		}
		payload := domain.MultiplePayload{Options: raw.Options}
		for _, f := range raw.Files {
			ref, err := stage(f, raw.Options)
			if err != nil {
				return nil, nil, err
			}
			payload.Files = append(payload.Files, ref)
		}
		return payload, refs, nil

	case domain.JobTypeUploadFields:
		if err := checkRequiredFields(raw); err != nil {
			return nil, nil, err
		}
		var payload domain.FieldsPayload
		for _, field := range raw.Fields {
			if len(field.Files) == 0 {
				continue
			}
			opts := domain.OptionsForField(field.Field, raw.Options)
			entry := domain.FieldFiles{Field: field.Field}
			for _, f := range field.Files {
				ref, err := stage(f, opts)
				if err != nil {
					return nil, nil, err
				}
				entry.Files = append(entry.Files, ref)
			}
			payload.Fields = append(payload.Fields, entry)
		}
		return payload, refs, nil

	case domain.JobTypeDeleteFile:
		ref := strings.TrimSpace(raw.Reference)
		if ref == "" {
			return nil, nil, domain.NewValidationError("filename", "is required")
		}
		return domain.DeletePayload{Reference: ref}, nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
}

// checkRequiredFields rejects field uploads that miss a required field or
// carry no files at all.
func checkRequiredFields(raw domain.RawPayload) error {
	counts := make(map[string]int, len(raw.Fields))
	total := 0
	for _, f := range raw.Fields {
		counts[f.Field] += len(f.Files)
		total += len(f.Files)
	}
	for _, name := range raw.RequiredFields {
		if counts[name] == 0 {
			return domain.NewValidationError(name, "is required")
		}
	}
	if total == 0 {
		return domain.NewValidationError("fields", "must contain at least one file")
	}
	return nil
}

// abandon cleans up after a job that could not be handed to the queue.
func (p *Producer) abandon(ctx context.Context, job *Job, refs []domain.FileStagingRef, cause error) {
	p.release(refs)
	if err := p.store.UpdateJobStatus(ctx, job.ID, domain.JobStatusFailed, nil, cause.Error()); err != nil {
		p.logger.Warn("failed to mark abandoned job as failed", "job_id", job.ID, "error", err)
	}
}

func (p *Producer) release(refs []domain.FileStagingRef) {
	if len(refs) > 0 {
		p.stager.ReleaseAll(refs)
	}
}
