package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/filepipe/internal/events"
	"github.com/phrazzld/filepipe/internal/store"
)

// JobStatusRecorder implements the events.EventHandler interface by writing
// each job event to the job store. It runs in the emitting worker before the
// event is delivered, so a caller woken by the event can poll the final record.
type JobStatusRecorder struct {
	store  store.JobStore
	logger *slog.Logger
}

// NewJobStatusRecorder creates a handler that records job events in jobStore.
func NewJobStatusRecorder(jobStore store.JobStore, logger *slog.Logger) *JobStatusRecorder {
	return &JobStatusRecorder{
		store:  jobStore,
		logger: logger.With("component", "job_status_recorder"),
	}
}

// HandleEvent persists the status carried by event.
func (h *JobStatusRecorder) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	if err := h.store.UpdateJobStatus(ctx, event.JobID, event.Status, event.Result, event.Error); err != nil {
		h.logger.Error("failed to record job status",
			"error", err,
			"job_id", event.JobID,
			"status", event.Status)
		return fmt.Errorf("failed to record status of job %s: %w", event.JobID, err)
	}
	return nil
}

// Ensure JobStatusRecorder implements events.EventHandler
var _ events.EventHandler = (*JobStatusRecorder)(nil)
