package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a request is missing a required file,
	// field or reference. It is often wrapped by a ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrStaging is returned when uploaded bytes cannot be written to the
	// scratch directory.
	ErrStaging = errors.New("staging failed")

	// ErrProvider is returned when a storage provider fails an upload or delete.
	ErrProvider = errors.New("storage provider error")

	// ErrNotFound is returned when a stored file or job record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownJobType is returned for jobs whose type no worker understands.
	// Such jobs are never retried.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrUnknownProvider is returned when a provider selector cannot be resolved.
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrValidation)

	// ErrJobFailed is returned to a waiting producer when the worker reported
	// a failure for its job.
	ErrJobFailed = errors.New("job failed")
)

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Message)
	}
	return fmt.Sprintf("%v: %s %s", e.Err, e.Field, e.Message)
}

// Unwrap returns the wrapped sentinel so errors.Is(err, ErrValidation) holds.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     ErrValidation,
	}
}

// Error codes travel with failed job events so that a producer in another
// process can tell which sentinel the worker failed with.
const (
	CodeValidation     = "validation"
	CodeStaging        = "staging"
	CodeNotFound       = "not_found"
	CodeProvider       = "provider"
	CodeUnknownJobType = "unknown_job_type"
)

var sentinelsByCode = map[string]error{
	CodeValidation:     ErrValidation,
	CodeStaging:        ErrStaging,
	CodeNotFound:       ErrNotFound,
	CodeProvider:       ErrProvider,
	CodeUnknownJobType: ErrUnknownJobType,
}

// ErrorCode returns the code of the first sentinel err wraps, or "" if none.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnknownJobType):
		return CodeUnknownJobType
	case errors.Is(err, ErrStaging):
		return CodeStaging
	case errors.Is(err, ErrProvider):
		return CodeProvider
	}
	return ""
}

// SentinelForCode is the inverse of ErrorCode. It returns nil for unknown codes.
func SentinelForCode(code string) error {
	return sentinelsByCode[code]
}
