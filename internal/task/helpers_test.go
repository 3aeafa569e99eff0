package task

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/platform/logger"
	"github.com/phrazzld/filepipe/internal/staging"
	"github.com/phrazzld/filepipe/internal/storage"
	"github.com/phrazzld/filepipe/internal/store"
)

// fakeProvider is an in-memory storage.Provider whose behaviour can be
// overridden per test.
type fakeProvider struct {
	kind domain.ProviderKind

	mu       sync.Mutex
	stored   map[string][]byte
	uploaded []string
	opts     []domain.UploadOptions

	UploadFn func(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileRecord, error)
	DeleteFn func(ctx context.Context, reference string) (bool, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{kind: domain.ProviderLocal, stored: map[string][]byte{}}
}

func (p *fakeProvider) Kind() domain.ProviderKind {
	return p.kind
}

func (p *fakeProvider) Upload(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileRecord, error) {
	p.mu.Lock()
	p.uploaded = append(p.uploaded, file.OriginalName)
	p.opts = append(p.opts, opts)
	p.mu.Unlock()

	if p.UploadFn != nil {
		return p.UploadFn(ctx, file, opts)
	}

	p.mu.Lock()
	p.stored[file.OriginalName] = append([]byte(nil), file.Data...)
	p.mu.Unlock()
	return domain.FileRecord{
		Provider: p.kind,
		Filename: file.OriginalName,
		URL:      "mem://" + file.OriginalName,
		Size:     file.Size,
		MimeType: file.MimeType,
	}, nil
}

func (p *fakeProvider) Delete(ctx context.Context, reference string) (bool, error) {
	if p.DeleteFn != nil {
		return p.DeleteFn(ctx, reference)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stored[reference]; !ok {
		return false, domain.ErrNotFound
	}
	delete(p.stored, reference)
	return true, nil
}

func (p *fakeProvider) uploadedNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.uploaded...)
}

func (p *fakeProvider) bytesOf(name string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stored[name]
}

func newTestRegistry(t *testing.T, providers ...storage.Provider) *storage.Registry {
	t.Helper()
	r, err := storage.NewRegistry(domain.ProviderLocal, providers...)
	require.NoError(t, err)
	return r
}

func newTestStager(t *testing.T) *staging.Stager {
	t.Helper()
	return staging.NewStager(filepath.Join(t.TempDir(), "tmp"), logger.Discard())
}

func stageAll(t *testing.T, s *staging.Stager, names ...string) []domain.FileStagingRef {
	t.Helper()
	refs := make([]domain.FileStagingRef, 0, len(names))
	for _, name := range names {
		ref, err := s.Stage(context.Background(), domain.File{
			Data:         []byte("content of " + name),
			OriginalName: name,
			MimeType:     "text/plain",
		}, domain.UploadOptions{})
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	return refs
}

// scratchFiles lists what is left in the stager's scratch directory.
func scratchFiles(t *testing.T, s *staging.Stager) []string {
	t.Helper()
	entries, err := os.ReadDir(s.Dir())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func textFile(name string) domain.File {
	data := []byte("content of " + name)
	return domain.File{Data: data, OriginalName: name, MimeType: "text/plain", Size: int64(len(data))}
}

// recordingStore is a MemoryJobStore that remembers every status transition.
type recordingStore struct {
	*store.MemoryJobStore

	mu      sync.Mutex
	history map[uuid.UUID][]domain.JobStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryJobStore: store.NewMemoryJobStore(),
		history:        map[uuid.UUID][]domain.JobStatus{},
	}
}

func (s *recordingStore) UpdateJobStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.JobStatus,
	result json.RawMessage,
	errorMsg string,
) error {
	s.mu.Lock()
	s.history[id] = append(s.history[id], status)
	s.mu.Unlock()
	return s.MemoryJobStore.UpdateJobStatus(ctx, id, status, result, errorMsg)
}

func (s *recordingStore) transitions(id uuid.UUID) []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JobStatus(nil), s.history[id]...)
}
