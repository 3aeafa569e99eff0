package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/staging"
	"github.com/phrazzld/filepipe/internal/storage"
)

const tracerName = "github.com/phrazzld/filepipe/internal/task"

// JobProcessor performs the work a job describes and returns its
// JSON-encoded result.
type JobProcessor interface {
	Process(ctx context.Context, job *Job) (json.RawMessage, error)
}

// Processor dispatches jobs by type to storage providers.
type Processor struct {
	providers ProviderSource
	stager    FileStager
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewProcessor creates a Processor reading staged files through stager.
func NewProcessor(providers ProviderSource, stager FileStager, logger *slog.Logger) *Processor {
	return &Processor{
		providers: providers,
		stager:    stager,
		tracer:    otel.Tracer(tracerName),
		logger:    logger.With("component", "processor"),
	}
}

// Process runs job to completion. Every staged file the job carries has been
// released by the time Process returns, whatever the outcome.
//
// Result shapes: UPLOAD_SINGLE yields a FileRecord, UPLOAD_MULTIPLE and
// UPLOAD_FIELDS yield a FileRecord list in input order, DELETE_FILE yields a
// DeleteResult. Multi-file jobs stop at the first failing item; items stored
// before it are not rolled back.
func (p *Processor) Process(ctx context.Context, job *Job) (json.RawMessage, error) {
	ctx, span := p.tracer.Start(ctx, "task.Process", trace.WithAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", string(job.Type)),
		attribute.String("job.provider", string(job.Provider)),
	))
	defer span.End()

	if !job.Type.Valid() {
		err := fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := p.dispatch(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		span.SetStatus(codes.Error, "encode result")
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return data, nil
}

func (p *Processor) dispatch(ctx context.Context, job *Job) (interface{}, error) {
	logger := p.logger.With("job_id", job.ID, "job_type", job.Type, "provider", job.Provider)

	switch job.Type {
	case domain.JobTypeUploadSingle:
		var payload domain.SinglePayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return nil, err
		}
		b := p.newBatch(payload.StagedRefs(), logger)
		defer b.releaseAll()

		provider, err := p.provider(job)
		if err != nil {
			return nil, err
		}
		return b.upload(ctx, provider, 0, payload.File.Options)

	case domain.JobTypeUploadMultiple:
		var payload domain.MultiplePayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return nil, err
		}
		b := p.newBatch(payload.StagedRefs(), logger)
		defer b.releaseAll()

		provider, err := p.provider(job)
		if err != nil {
			return nil, err
		}
		records := make([]domain.FileRecord, 0, len(payload.Files))
		for i := range payload.Files {
			rec, err := b.upload(ctx, provider, i, payload.Options)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		return records, nil

	case domain.JobTypeUploadFields:
		var payload domain.FieldsPayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return nil, err
		}
		b := p.newBatch(payload.StagedRefs(), logger)
		defer b.releaseAll()

		provider, err := p.provider(job)
		if err != nil {
			return nil, err
		}
		var records []domain.FileRecord
		i := 0
		for _, field := range payload.Fields {
			for _, ref := range field.Files {
				rec, err := b.upload(ctx, provider, i, domain.OptionsForField(field.Field, ref.Options))
				if err != nil {
					return nil, fmt.Errorf("field %s: %w", field.Field, err)
				}
				rec.Field = field.Field
				records = append(records, rec)
				i++
			}
		}
		return records, nil

	case domain.JobTypeDeleteFile:
		var payload domain.DeletePayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return nil, err
		}
		provider, err := p.provider(job)
		if err != nil {
			return nil, err
		}
		ok, err := provider.Delete(ctx, payload.Reference)
		if err != nil {
			return nil, err
		}
		logger.Debug("deleted file", "reference", payload.Reference)
		return domain.DeleteResult{Success: ok, Reference: payload.Reference}, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.Type)
	}
}

func (p *Processor) provider(job *Job) (storage.Provider, error) {
	provider, err := p.providers.Get(job.Provider)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	return provider, nil
}

// batch walks the staged files of one job and releases each exactly once.
type batch struct {
	refs     []domain.FileStagingRef
	released []bool
	stager   FileStager
	logger   *slog.Logger
}

func (p *Processor) newBatch(refs []domain.FileStagingRef, logger *slog.Logger) *batch {
	return &batch{
		refs:     refs,
		released: make([]bool, len(refs)),
		stager:   p.stager,
		logger:   logger,
	}
}

// upload stores the i-th staged file and releases it, whether or not the
// upload succeeded.
func (b *batch) upload(ctx context.Context, provider storage.Provider, i int, opts domain.UploadOptions) (domain.FileRecord, error) {
	defer b.release(i)

	ref := b.refs[i]
	file, err := b.stager.Open(ref)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("file %d (%s): %w", i+1, ref.OriginalName, err)
	}

	rec, err := provider.Upload(ctx, file, opts)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("file %d (%s): %w", i+1, ref.OriginalName, err)
	}

	b.logger.Debug("uploaded file",
		"index", i,
		"original_name", ref.OriginalName,
		"category", staging.Category(ref.OriginalName),
		"location", rec.Location())
	return rec, nil
}

func (b *batch) release(i int) {
	if b.released[i] {
		return
	}
	b.released[i] = true
	if err := b.stager.Release(b.refs[i]); err != nil {
		b.logger.Warn("failed to release staged file",
			"temp_path", b.refs[i].TempPath,
			"error", err)
	}
}

// releaseAll releases the files that were never attempted.
func (b *batch) releaseAll() {
	for i := range b.refs {
		b.release(i)
	}
}
