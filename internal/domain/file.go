package domain

// UploadOptions tune how a provider stores a file.
type UploadOptions struct {
	// Folder is an optional sub-folder (local) or key prefix (object store).
	Folder string `json:"folder,omitempty"`

	// Compress requests image recompression; ignored for non-image content.
	Compress bool `json:"compress,omitempty"`

	// Width is the target width in pixels when compressing. Zero means the
	// provider default.
	Width int `json:"width,omitempty"`
}

// File is an upload held in memory: as received from the request layer, and
// again when a worker hands staged bytes to a storage provider.
type File struct {
	Data         []byte
	OriginalName string
	MimeType     string
	Size         int64
}

// FileStagingRef points at bytes already written to the scratch directory.
// The scratch file lives until the worker that owns the job releases it.
type FileStagingRef struct {
	TempPath     string        `json:"temp_path"`
	OriginalName string        `json:"original_name"`
	MimeType     string        `json:"mime_type"`
	Size         int64         `json:"size"`
	Options      UploadOptions `json:"options"`
}

// FileRecord describes a stored file.
type FileRecord struct {
	Provider ProviderKind `json:"provider"`
	Filename string       `json:"filename,omitempty"`
	Key      string       `json:"key,omitempty"`
	URL      string       `json:"url"`
	Size     int64        `json:"size"`
	MimeType string       `json:"mime_type"`
	// Field is set for results of UPLOAD_FIELDS jobs.
	Field string `json:"field,omitempty"`
}

// Location returns the provider reference that can later be passed to delete.
func (r FileRecord) Location() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Filename
}

// DeleteResult is the result of a DELETE_FILE job.
type DeleteResult struct {
	Success   bool   `json:"success"`
	Reference string `json:"filename"`
}
