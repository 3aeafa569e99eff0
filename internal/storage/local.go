package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/staging"
)

// LocalConfig configures a LocalProvider.
type LocalConfig struct {
	// Root is the public directory files are written under.
	Root string

	// PublicBaseURL prefixes returned URLs. Empty yields root-relative URLs.
	PublicBaseURL string

	// CompressWidth is the default resize width for compressed images.
	CompressWidth int
}

// maxNameAttempts bounds how often Upload retries after a name collision.
const maxNameAttempts = 3

// LocalProvider writes files into a rooted public directory.
type LocalProvider struct {
	cfg    LocalConfig
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewLocalProvider creates a filesystem provider.
func NewLocalProvider(cfg LocalConfig, logger *slog.Logger) *LocalProvider {
	if cfg.CompressWidth <= 0 {
		cfg.CompressWidth = DefaultCompressWidth
	}
	return &LocalProvider{
		cfg:    cfg,
		now:    time.Now,
		newID:  func() string { return ksuid.New().String() },
		logger: logger.With("component", "local_provider"),
	}
}

// Kind implements Provider.
func (p *LocalProvider) Kind() domain.ProviderKind {
	return domain.ProviderLocal
}

// Upload writes file under Root/opts.Folder with a timestamp-prefixed name.
// An existing file is never overwritten: on a collision the name gains a
// unique segment. Images are resized first when opts.Compress is set.
func (p *LocalProvider) Upload(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileRecord{}, err
	}

	folder, err := cleanFolder(opts.Folder)
	if err != nil {
		return domain.FileRecord{}, err
	}

	dir := filepath.Join(p.cfg.Root, filepath.FromSlash(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.FileRecord{}, fmt.Errorf("%w: create folder: %v", domain.ErrProvider, err)
	}

	data := file.Data
	if opts.Compress && staging.IsImage(file.MimeType) {
		data, err = p.compress(file, opts)
		if err != nil {
			return domain.FileRecord{}, err
		}
	}

	filename, err := p.writeUnique(dir, staging.SanitizeName(file.OriginalName), data)
	if err != nil {
		return domain.FileRecord{}, err
	}

	reference := filename
	if folder != "" {
		reference = folder + "/" + filename
	}

	p.logger.Debug("stored file",
		"filename", filename,
		"folder", folder,
		"bytes_written", len(data))

	return domain.FileRecord{
		Provider: domain.ProviderLocal,
		Filename: reference,
		URL:      p.url(reference),
		Size:     file.Size,
		MimeType: file.MimeType,
	}, nil
}

// writeUnique creates a new file in dir named "<millis>-<name>", falling back
// to "<millis>-<id>-<name>" when that name is taken.
func (p *LocalProvider) writeUnique(dir, name string, data []byte) (string, error) {
	stamp := p.now().UnixMilli()
	filename := fmt.Sprintf("%d-%s", stamp, name)

	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(filepath.Join(dir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) && attempt < maxNameAttempts {
			filename = fmt.Sprintf("%d-%s-%s", stamp, p.newID(), name)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: create %s: %v", domain.ErrProvider, filename, err)
		}

		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("%w: write %s: %v", domain.ErrProvider, filename, err)
		}
		return filename, nil
	}
}

func (p *LocalProvider) compress(file domain.File, opts domain.UploadOptions) ([]byte, error) {
	if !canCompress(file.MimeType) {
		p.logger.Debug("skipping compression for unsupported image type", "mime_type", file.MimeType)
		return file.Data, nil
	}
	width := opts.Width
	if width <= 0 {
		width = p.cfg.CompressWidth
	}
	data, err := compressImage(file.Data, file.MimeType, width)
	if err != nil {
		return nil, fmt.Errorf("%w: compress %s: %v", domain.ErrProvider, file.OriginalName, err)
	}
	return data, nil
}

// Delete removes the file at reference, relative to Root. A missing file is
// reported as domain.ErrNotFound. Directories are never removed.
func (p *LocalProvider) Delete(ctx context.Context, reference string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if strings.TrimSpace(reference) == "" {
		return false, domain.NewValidationError("filename", "is required")
	}

	clean, err := cleanFolder(reference)
	if err != nil {
		return false, err
	}
	if clean == "" {
		return false, domain.NewValidationError("filename", "must name a file")
	}

	target := filepath.Join(p.cfg.Root, filepath.FromSlash(clean))
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return false, domain.NewValidationError("filename", "must name a file")
	}

	err = os.Remove(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("%w: file %s", domain.ErrNotFound, clean)
	case err != nil:
		return false, fmt.Errorf("%w: delete %s: %v", domain.ErrProvider, clean, err)
	}
	return true, nil
}

func (p *LocalProvider) url(reference string) string {
	return strings.TrimSuffix(p.cfg.PublicBaseURL, "/") + "/" + reference
}

// cleanFolder normalizes a slash-separated relative path and rejects paths
// that would escape the root.
func cleanFolder(folder string) (string, error) {
	folder = strings.Trim(strings.ReplaceAll(folder, "\\", "/"), "/")
	if folder == "" {
		return "", nil
	}
	clean := path.Clean(folder)
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", domain.NewValidationError("folder", "must stay inside the storage root")
	}
	return clean, nil
}
