package domain

import (
	"fmt"
	"strings"
)

// JobType identifies the file operation a job performs.
type JobType string

// Supported job types. The string values are part of the wire format.
const (
	JobTypeUploadSingle   JobType = "UPLOAD_SINGLE"
	JobTypeUploadMultiple JobType = "UPLOAD_MULTIPLE"
	JobTypeUploadFields   JobType = "UPLOAD_FIELDS"
	JobTypeDeleteFile     JobType = "DELETE_FILE"
)

// Valid reports whether t is one of the supported job types.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeUploadSingle, JobTypeUploadMultiple, JobTypeUploadFields, JobTypeDeleteFile:
		return true
	}
	return false
}

// ProviderKind selects a storage provider.
type ProviderKind string

// Supported providers.
const (
	ProviderLocal ProviderKind = "local"
	ProviderS3    ProviderKind = "s3"
)

// ParseProviderKind resolves a provider selector. An empty selector resolves
// to fallback. Matching is case-insensitive.
func ParseProviderKind(s string, fallback ProviderKind) (ProviderKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback, nil
	}
	switch ProviderKind(s) {
	case ProviderLocal:
		return ProviderLocal, nil
	case ProviderS3:
		return ProviderS3, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// JobStatus is the lifecycle state of a job record.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
