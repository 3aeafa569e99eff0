package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/api/shared"
	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
)

// DefaultMaxUploadBytes bounds a single uploaded file when no limit is configured.
const DefaultMaxUploadBytes = 5 << 20

// JobSubmitter submits file jobs and reports on them. It is implemented by
// task.Producer.
type JobSubmitter interface {
	Enqueue(ctx context.Context, jobType domain.JobType, providerSelector string, raw domain.RawPayload) (domain.Outcome, error)
	Poll(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
}

// FileHandler handles upload, delete and job polling requests.
type FileHandler struct {
	jobs           JobSubmitter
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewFileHandler creates a FileHandler. A non-positive maxUploadBytes selects
// DefaultMaxUploadBytes.
func NewFileHandler(jobs JobSubmitter, maxUploadBytes int64, logger *slog.Logger) *FileHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &FileHandler{
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "file_handler"),
	}
}

// Upload returns the handler for one upload route.
func (h *FileHandler) Upload(route uploadRoute) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContextOrDefault(r.Context(), h.logger)
		provider := chi.URLParam(r, "provider")

		raw, err := parseUpload(w, r, route, h.maxUploadBytes)
		if err != nil {
			log.Debug("rejected upload", "route", route.path, "error", err)
			HandleAPIError(w, r, err, "Failed to read upload")
			return
		}

		outcome, err := h.jobs.Enqueue(r.Context(), route.jobType, provider, raw)
		h.respond(w, r, outcome, err, "Failed to upload file")
	}
}

// Delete enqueues removal of the file named by the ref query parameter.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req := DeleteFileRequest{Reference: r.URL.Query().Get("ref")}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	outcome, err := h.jobs.Enqueue(r.Context(), domain.JobTypeDeleteFile, chi.URLParam(r, "provider"),
		domain.RawPayload{Reference: req.Reference})
	h.respond(w, r, outcome, err, "Failed to delete file")
}

// GetJob returns the stored state of a job.
func (h *FileHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	rec, err := h.jobs.Poll(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, newJobStatusResponse(rec))
}

// respond writes the outcome of a submitted job: 200 with the result when it
// finished in time, 202 with the job handle when it is still running.
func (h *FileHandler) respond(w http.ResponseWriter, r *http.Request, outcome domain.Outcome, err error, defaultMessage string) {
	if err != nil {
		HandleAPIError(w, r, err, defaultMessage)
		return
	}

	switch outcome.Kind {
	case domain.OutcomeCompleted:
		shared.RespondWithJSON(w, r, http.StatusOK, JobResultResponse{
			JobID:  outcome.JobID,
			Status: outcome.Kind,
			Result: outcome.Result,
		})
	case domain.OutcomePending:
		shared.RespondWithJSON(w, r, http.StatusAccepted, JobAcceptedResponse{
			JobID:  outcome.JobID,
			Status: outcome.Kind,
		})
	default:
		// failed outcomes always come with an error
		HandleAPIError(w, r, domain.ErrJobFailed, defaultMessage)
	}
}
