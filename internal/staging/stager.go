package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/phrazzld/filepipe/internal/domain"
)

// Stager persists uploads into a scratch directory and reclaims them once a
// worker has consumed them.
type Stager struct {
	dir    string
	logger *slog.Logger

	once    sync.Once
	initErr error
}

// NewStager creates a Stager rooted at dir. The directory is created on first use.
func NewStager(dir string, logger *slog.Logger) *Stager {
	return &Stager{
		dir:    dir,
		logger: logger.With("component", "stager"),
	}
}

// Dir returns the scratch directory.
func (s *Stager) Dir() string {
	return s.dir
}

func (s *Stager) ensureDir() error {
	s.once.Do(func() {
		s.initErr = os.MkdirAll(s.dir, 0o755)
	})
	return s.initErr
}

// Stage writes file to the scratch directory and returns a reference to it.
// The data is synced to disk and renamed into place before the reference is
// returned, so a worker never observes a partial file.
func (s *Stager) Stage(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileStagingRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileStagingRef{}, err
	}
	if err := s.ensureDir(); err != nil {
		return domain.FileStagingRef{}, fmt.Errorf("%w: create scratch dir: %v", domain.ErrStaging, err)
	}

	name := ksuid.New().String() + "-" + SanitizeName(file.OriginalName)
	finalPath := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return domain.FileStagingRef{}, fmt.Errorf("%w: create temp file: %v", domain.ErrStaging, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(file.Data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return domain.FileStagingRef{}, fmt.Errorf("%w: write %s: %v", domain.ErrStaging, name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return domain.FileStagingRef{}, fmt.Errorf("%w: sync %s: %v", domain.ErrStaging, name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return domain.FileStagingRef{}, fmt.Errorf("%w: close %s: %v", domain.ErrStaging, name, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return domain.FileStagingRef{}, fmt.Errorf("%w: rename %s: %v", domain.ErrStaging, name, err)
	}

	size := file.Size
	if size <= 0 {
		size = int64(len(file.Data))
	}
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = DetectMimeType(file.OriginalName, file.Data)
	}

	s.logger.Debug("staged upload",
		"temp_path", finalPath,
		"original_name", file.OriginalName,
		"category", Category(file.OriginalName),
		"size", size)

	return domain.FileStagingRef{
		TempPath:     finalPath,
		OriginalName: file.OriginalName,
		MimeType:     mimeType,
		Size:         size,
		Options:      opts,
	}, nil
}

// Open reads the staged bytes of ref back into a domain.File.
func (s *Stager) Open(ref domain.FileStagingRef) (domain.File, error) {
	if !s.owns(ref.TempPath) {
		return domain.File{}, fmt.Errorf("%w: %s is outside the scratch directory", domain.ErrStaging, ref.TempPath)
	}
	data, err := os.ReadFile(ref.TempPath)
	if err != nil {
		return domain.File{}, fmt.Errorf("%w: read staged file: %v", domain.ErrStaging, err)
	}
	return domain.File{
		Data:         data,
		OriginalName: ref.OriginalName,
		MimeType:     ref.MimeType,
		Size:         ref.Size,
	}, nil
}

// Release deletes the scratch file behind ref. A missing file is not an error.
func (s *Stager) Release(ref domain.FileStagingRef) error {
	if ref.TempPath == "" {
		return nil
	}
	if !s.owns(ref.TempPath) {
		return fmt.Errorf("release staged file: %s is outside the scratch directory", ref.TempPath)
	}
	err := os.Remove(ref.TempPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release staged file: %w", err)
	}
	return nil
}

// owns reports whether path names a file directly inside the scratch
// directory. Refs arrive over the queue and are not trusted blindly.
func (s *Stager) owns(path string) bool {
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == dir
}

// ReleaseAll releases every ref, logging failures instead of returning them.
func (s *Stager) ReleaseAll(refs []domain.FileStagingRef) {
	for _, ref := range refs {
		if err := s.Release(ref); err != nil {
			s.logger.Warn("failed to release staged file",
				"temp_path", ref.TempPath,
				"error", err)
		}
	}
}

// SanitizeName strips directory components and characters that are unsafe in
// file names or object keys.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)
}
