package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apimw "github.com/phrazzld/filepipe/internal/api/middleware"
	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
	"github.com/phrazzld/filepipe/internal/store"
)

// fakeSubmitter records submissions and answers with the configured functions.
type fakeSubmitter struct {
	EnqueueFn func(ctx context.Context, jobType domain.JobType, provider string, raw domain.RawPayload) (domain.Outcome, error)
	PollFn    func(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)

	jobType  domain.JobType
	provider string
	raw      domain.RawPayload
	calls    int
}

func (f *fakeSubmitter) Enqueue(ctx context.Context, jobType domain.JobType, provider string, raw domain.RawPayload) (domain.Outcome, error) {
	f.calls++
	f.jobType, f.provider, f.raw = jobType, provider, raw
	if f.EnqueueFn != nil {
		return f.EnqueueFn(ctx, jobType, provider, raw)
	}
	return domain.Outcome{Kind: domain.OutcomeCompleted, JobID: uuid.New(), Result: json.RawMessage(`{"url":"u"}`)}, nil
}

func (f *fakeSubmitter) Poll(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	if f.PollFn != nil {
		return f.PollFn(ctx, id)
	}
	return nil, store.ErrJobNotFound
}

type formFile struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, files []formFile, values map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name)}
		if f.contentType != "" {
			h["Content-Type"] = []string{f.contentType}
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newTestRouter(jobs JobSubmitter, maxUpload int64) http.Handler {
	return NewRouter(RouterConfig{
		Files:  NewFileHandler(jobs, maxUpload, logger.Discard()),
		Logger: logger.Discard(),
	})
}

func doUpload(t *testing.T, h http.Handler, path string, files []formFile, values map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files, values)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUpload_SingleCompleted(t *testing.T) {
	jobs := &fakeSubmitter{}
	h := newTestRouter(jobs, 0)

	w := doUpload(t, h, "/api/files/local/file",
		[]formFile{{field: "file", name: "a.txt", contentType: "text/plain", data: []byte("hello")}},
		map[string]string{"folder": "docs"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, map[string]interface{}{"url": "u"}, body["result"])

	assert.Equal(t, domain.JobTypeUploadSingle, jobs.jobType)
	assert.Equal(t, "local", jobs.provider)
	require.NotNil(t, jobs.raw.File)
	assert.Equal(t, "a.txt", jobs.raw.File.OriginalName)
	assert.Equal(t, "text/plain", jobs.raw.File.MimeType)
	assert.Equal(t, []byte("hello"), jobs.raw.File.Data)
	assert.Equal(t, int64(5), jobs.raw.File.Size)
	assert.Equal(t, "docs", jobs.raw.Options.Folder)
	assert.False(t, jobs.raw.Options.Compress)
}

func TestUpload_ImageRoutesCompress(t *testing.T) {
	for _, path := range []string{"/api/files/s3/image", "/api/files/s3/images"} {
		jobs := &fakeSubmitter{}
		field := strings.TrimPrefix(path, "/api/files/s3/")
		w := doUpload(t, newTestRouter(jobs, 0), path,
			[]formFile{{field: field, name: "p.png", data: []byte("png")}}, nil)

		require.Equal(t, http.StatusOK, w.Code, path)
		assert.True(t, jobs.raw.Options.Compress, path)
		assert.Equal(t, "s3", jobs.provider)
	}
}

func TestUpload_Pending(t *testing.T) {
	id := uuid.New()
	jobs := &fakeSubmitter{
		EnqueueFn: func(context.Context, domain.JobType, string, domain.RawPayload) (domain.Outcome, error) {
			return domain.Outcome{Kind: domain.OutcomePending, JobID: id}, nil
		},
	}

	w := doUpload(t, newTestRouter(jobs, 0), "/api/files/local/files", []formFile{
		{field: "files", name: "a.txt", data: []byte("a")},
		{field: "files", name: "b.txt", data: []byte("b")},
	}, nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"job_id":%q,"status":"processing"}`, id), w.Body.String())

	assert.Equal(t, domain.JobTypeUploadMultiple, jobs.jobType)
	require.Len(t, jobs.raw.Files, 2)
	assert.Equal(t, "a.txt", jobs.raw.Files[0].OriginalName)
	assert.Equal(t, "b.txt", jobs.raw.Files[1].OriginalName)
}

func TestUpload_Fields(t *testing.T) {
	jobs := &fakeSubmitter{}

	w := doUpload(t, newTestRouter(jobs, 0), "/api/files/local/all", []formFile{
		{field: "image", name: "p.png", data: []byte("png")},
		{field: "file", name: "a.txt", data: []byte("a")},
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.JobTypeUploadFields, jobs.jobType)
	require.Len(t, jobs.raw.Fields, 2)
	assert.Equal(t, "file", jobs.raw.Fields[0].Field)
	assert.Len(t, jobs.raw.Fields[0].Files, 1)
	assert.Equal(t, "image", jobs.raw.Fields[1].Field)
	assert.Len(t, jobs.raw.Fields[1].Files, 1)
}

func TestUpload_RejectedRequests(t *testing.T) {
	many := make([]formFile, 11)
	for i := range many {
		many[i] = formFile{field: "files", name: fmt.Sprintf("%d.txt", i), data: []byte("x")}
	}

	tests := []struct {
		name    string
		path    string
		files   []formFile
		values  map[string]string
		status  int
		message string
	}{
		{"missing file", "/api/files/local/file", nil, nil, http.StatusBadRequest, "Invalid file: is required"},
		{"unexpected field", "/api/files/local/file",
			[]formFile{{field: "attachment", name: "a", data: []byte("a")}}, nil, http.StatusBadRequest, "Invalid attachment"},
		{"two files on single route", "/api/files/local/file", []formFile{
			{field: "file", name: "a", data: []byte("a")},
			{field: "file", name: "b", data: []byte("b")},
		}, nil, http.StatusBadRequest, "Too many files"},
		{"eleven files", "/api/files/local/files", many, nil, http.StatusBadRequest, "Too many files"},
		{"file too large", "/api/files/local/file",
			[]formFile{{field: "file", name: "big", data: bytes.Repeat([]byte("x"), 64)}}, nil, http.StatusRequestEntityTooLarge, "File too large"},
		{"folder too long", "/api/files/local/file",
			[]formFile{{field: "file", name: "a", data: []byte("a")}},
			map[string]string{"folder": strings.Repeat("f", 300)}, http.StatusBadRequest, "Invalid folder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeSubmitter{}
			w := doUpload(t, newTestRouter(jobs, 32), tt.path, tt.files, tt.values)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, decodeBody(t, w)["error"], tt.message)
			assert.Zero(t, jobs.calls, "rejected requests are never enqueued")
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	jobs := &fakeSubmitter{}
	req := httptest.NewRequest(http.MethodPost, "/api/files/local/file", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	newTestRouter(jobs, 0).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "multipart/form-data")
}

func TestUpload_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown provider", fmt.Errorf("%w: %q", domain.ErrUnknownProvider, "ftp"), http.StatusBadRequest},
		{"staging", fmt.Errorf("%w: disk full", domain.ErrStaging), http.StatusInternalServerError},
		{"provider failure", fmt.Errorf("%w: %w: %s", domain.ErrJobFailed, domain.ErrProvider, "bucket gone"), http.StatusBadGateway},
		{"missing on delete", fmt.Errorf("%w: %w: %s", domain.ErrJobFailed, domain.ErrNotFound, "a.txt"), http.StatusNotFound},
		{"canceled", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeSubmitter{
				EnqueueFn: func(context.Context, domain.JobType, string, domain.RawPayload) (domain.Outcome, error) {
					return domain.Outcome{Kind: domain.OutcomeFailed}, tt.err
				},
			}
			w := doUpload(t, newTestRouter(jobs, 0), "/api/files/ftp/file",
				[]formFile{{field: "file", name: "a.txt", data: []byte("a")}}, nil)

			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "bucket gone")
		})
	}
}

func TestDelete(t *testing.T) {
	jobs := &fakeSubmitter{
		EnqueueFn: func(context.Context, domain.JobType, string, domain.RawPayload) (domain.Outcome, error) {
			return domain.Outcome{
				Kind:   domain.OutcomeCompleted,
				JobID:  uuid.New(),
				Result: json.RawMessage(`{"success":true,"filename":"uploads/a.txt"}`),
			}, nil
		},
	}
	h := newTestRouter(jobs, 0)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/files/s3?ref=uploads/a.txt", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.JobTypeDeleteFile, jobs.jobType)
	assert.Equal(t, "s3", jobs.provider)
	assert.Equal(t, "uploads/a.txt", jobs.raw.Reference)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/files/s3", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid ref: is required")
	assert.Equal(t, 1, jobs.calls)
}

func TestGetJob(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := &fakeSubmitter{
		PollFn: func(_ context.Context, got uuid.UUID) (*domain.JobRecord, error) {
			if got != id {
				return nil, fmt.Errorf("failed to get job %s: %w", got, store.ErrJobNotFound)
			}
			return &domain.JobRecord{
				ID:        id,
				Type:      domain.JobTypeUploadSingle,
				Provider:  domain.ProviderLocal,
				Status:    domain.JobStatusCompleted,
				Result:    json.RawMessage(`{"url":"u"}`),
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}
	h := newTestRouter(jobs, 0)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, id.String(), body["job_id"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "UPLOAD_SINGLE", body["type"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.New().String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Job not found")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	healthy := NewRouter(RouterConfig{
		Files:  NewFileHandler(&fakeSubmitter{}, 0, logger.Discard()),
		Logger: logger.Discard(),
		Health: map[string]HealthCheck{"redis": func(context.Context) error { return nil }},
	})
	w := httptest.NewRecorder()
	healthy.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"redis":"ok"}}`, w.Body.String())

	degraded := NewRouter(RouterConfig{
		Files:  NewFileHandler(&fakeSubmitter{}, 0, logger.Discard()),
		Logger: logger.Discard(),
		Health: map[string]HealthCheck{"database": func(context.Context) error { return errors.New("down") }},
	})
	w = httptest.NewRecorder()
	degraded.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"unavailable"}}`, w.Body.String())
}

func TestRouter_MetricsAndAuth(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	jobs := &fakeSubmitter{}
	h := NewRouter(RouterConfig{
		Files:  NewFileHandler(jobs, 0, logger.Discard()),
		Auth:   apimw.NewAuthMiddleware(secret),
		Logger: logger.Discard(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("filepipe_jobs_in_flight 0\n"))
		}),
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "filepipe_jobs_in_flight")

	w = doUpload(t, h, "/api/files/local/file", []formFile{{field: "file", name: "a", data: []byte("a")}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, jobs.calls)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "uploader",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	body, contentType := multipartBody(t, []formFile{{field: "file", name: "a", data: []byte("a")}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/files/local/file", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, jobs.calls)
}
