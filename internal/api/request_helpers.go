package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/filepipe/internal/api/shared"
	"github.com/phrazzld/filepipe/internal/domain"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// uploadRoute describes one upload endpoint: the form fields it reads and
// how many files each may carry.
type uploadRoute struct {
	path     string
	jobType  domain.JobType
	fields   []string
	maxCount int
	compress bool
}

// uploadRoutes mirror the upload endpoints offered for every provider.
var uploadRoutes = []uploadRoute{
	{path: "/file", jobType: domain.JobTypeUploadSingle, fields: []string{"file"}, maxCount: 1},
	{path: "/image", jobType: domain.JobTypeUploadSingle, fields: []string{"image"}, maxCount: 1, compress: true},
	{path: "/files", jobType: domain.JobTypeUploadMultiple, fields: []string{"files"}, maxCount: 10},
	{path: "/images", jobType: domain.JobTypeUploadMultiple, fields: []string{"images"}, maxCount: 10, compress: true},
	{path: "/all", jobType: domain.JobTypeUploadFields, fields: []string{"file", domain.ImageField}, maxCount: 5},
}

// uploadForm holds the non-file form values of an upload.
type uploadForm struct {
	Folder string `form:"folder" validate:"max=255"`
}

// parseUpload reads the multipart body of r into a RawPayload for route.
// Each file is bounded by maxFileBytes.
func parseUpload(w http.ResponseWriter, r *http.Request, route uploadRoute, maxFileBytes int64) (domain.RawPayload, error) {
	// room for every allowed file plus form overhead
	limit := maxFileBytes*int64(route.maxCount*len(route.fields)) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.RawPayload{}, errFileTooLarge
		case errors.Is(err, http.ErrNotMultipart):
			return domain.RawPayload{}, domain.NewValidationError("", "request must be multipart/form-data")
		default:
			return domain.RawPayload{}, domain.NewValidationError("", "malformed multipart form")
		}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := uploadForm{Folder: r.FormValue("folder")}
	if err := shared.ValidateRequest(&form); err != nil {
		return domain.RawPayload{}, err
	}

	allowed := make(map[string]bool, len(route.fields))
	for _, f := range route.fields {
		allowed[f] = true
	}
	for name := range r.MultipartForm.File {
		if !allowed[name] {
			return domain.RawPayload{}, domain.NewValidationError(name, "is not an expected field")
		}
	}

	raw := domain.RawPayload{
		Options: domain.UploadOptions{Folder: form.Folder, Compress: route.compress},
	}

	for _, field := range route.fields {
		headers := r.MultipartForm.File[field]
		if len(headers) > route.maxCount {
			return domain.RawPayload{}, fmt.Errorf("%w: field %s accepts at most %d", errTooManyFiles, field, route.maxCount)
		}
		files, err := readFiles(headers, maxFileBytes)
		if err != nil {
			return domain.RawPayload{}, err
		}

		switch route.jobType {
		case domain.JobTypeUploadSingle:
			if len(files) > 0 {
				raw.File = &files[0]
			}
		case domain.JobTypeUploadMultiple:
			raw.Files = append(raw.Files, files...)
		case domain.JobTypeUploadFields:
			raw.Fields = append(raw.Fields, domain.RawField{Field: field, Files: files})
		}
	}

	if route.jobType == domain.JobTypeUploadSingle && raw.File == nil {
		return domain.RawPayload{}, domain.NewValidationError(route.fields[0], "is required")
	}

	return raw, nil
}

func readFiles(headers []*multipart.FileHeader, maxFileBytes int64) ([]domain.File, error) {
	files := make([]domain.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxFileBytes {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, fh.Filename, maxFileBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		files = append(files, domain.File{
			Data:         data,
			OriginalName: fh.Filename,
			MimeType:     fh.Header.Get("Content-Type"),
			Size:         int64(len(data)),
		})
	}
	return files, nil
}

// getPathUUID extracts and validates a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	req := JobPathRequest{ID: chi.URLParam(r, paramName)}
	if err := shared.ValidateRequest(&req); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(req.ID)
}
