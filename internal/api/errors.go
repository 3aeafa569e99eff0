package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/phrazzld/filepipe/internal/api/shared"
	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/store"
)

var (
	// errFileTooLarge is returned when an upload exceeds the size limit.
	errFileTooLarge = fmt.Errorf("%w: file too large", domain.ErrValidation)

	// errTooManyFiles is returned when a field carries more files than allowed.
	errTooManyFiles = fmt.Errorf("%w: too many files", domain.ErrValidation)
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownJobType):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrJobFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verr *domain.ValidationError
	switch {
	case errors.Is(err, errFileTooLarge):
		return "File too large"

	case errors.Is(err, errTooManyFiles):
		return "Too many files"

	case errors.As(err, &verr):
		if verr.Field == "" {
			return "Invalid request: " + verr.Message
		}
		return fmt.Sprintf("Invalid %s: %s", verr.Field, verr.Message)

	case errors.Is(err, domain.ErrUnknownProvider):
		return "Unknown storage provider"

	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"

	case errors.Is(err, domain.ErrUnknownJobType):
		return "Unsupported operation"

	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, domain.ErrNotFound):
		return "File not found"

	case errors.Is(err, domain.ErrJobFailed):
		return "Storage provider failed to process the file"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. A non-empty
// defaultMessage replaces the generic message for server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMessage string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMessage != "" {
		message = defaultMessage
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
