package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/phrazzld/filepipe/internal/domain"
	"github.com/phrazzld/filepipe/internal/staging"
)

// DefaultObjectFolder prefixes object keys when no folder is given.
const DefaultObjectFolder = "uploads"

// ObjectClient is the minimal object-store surface the provider needs.
type ObjectClient interface {
	// PutObject stores body under key and returns a URL for it.
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)

	// DeleteObject removes key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error
}

// ObjectStoreProvider stores files in an S3-compatible bucket.
type ObjectStoreProvider struct {
	client ObjectClient
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewObjectStoreProvider creates an object-store provider on top of client.
func NewObjectStoreProvider(client ObjectClient, logger *slog.Logger) *ObjectStoreProvider {
	return &ObjectStoreProvider{
		client: client,
		now:    time.Now,
		newID:  func() string { return ksuid.New().String() },
		logger: logger.With("component", "object_store_provider"),
	}
}

// Kind implements Provider.
func (p *ObjectStoreProvider) Kind() domain.ProviderKind {
	return domain.ProviderS3
}

// Upload puts file under "<folder>/<timestamp>-<id>-<name>". The id keeps
// keys unique when equal names arrive in the same millisecond.
func (p *ObjectStoreProvider) Upload(ctx context.Context, file domain.File, opts domain.UploadOptions) (domain.FileRecord, error) {
	folder, err := cleanFolder(opts.Folder)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if folder == "" {
		folder = DefaultObjectFolder
	}
	key := fmt.Sprintf("%s/%d-%s-%s", folder, p.now().UnixMilli(), p.newID(), staging.SanitizeName(file.OriginalName))

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := p.client.PutObject(ctx, key, file.Data, contentType)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("%w: put %s: %v", domain.ErrProvider, key, err)
	}

	p.logger.Debug("stored object", "key", key, "size", len(file.Data))

	return domain.FileRecord{
		Provider: domain.ProviderS3,
		Key:      key,
		URL:      url,
		Size:     file.Size,
		MimeType: file.MimeType,
	}, nil
}

// Delete removes the object at key. An empty key is a validation error.
func (p *ObjectStoreProvider) Delete(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, domain.NewValidationError("key", "is required")
	}
	if err := p.client.DeleteObject(ctx, key); err != nil {
		return false, fmt.Errorf("%w: delete %s: %v", domain.ErrProvider, key, err)
	}
	return true, nil
}

// objectURL joins a public base URL and a key.
func objectURL(base, bucket, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + bucket + "/" + key
}

// NewObjectClient builds the ObjectClient for the named backend: "s3" uses
// aws-sdk-go-v2, "minio" uses minio-go.
func NewObjectClient(ctx context.Context, backend string, cfg ObjectStoreConfig, logger *slog.Logger) (ObjectClient, error) {
	switch backend {
	case "", "s3":
		return NewS3Client(ctx, cfg)
	case "minio":
		return NewMinioClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", backend)
	}
}
