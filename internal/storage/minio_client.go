package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient implements ObjectClient with minio-go.
type MinioClient struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioClient connects to a MinIO endpoint and makes sure the bucket exists.
func NewMinioClient(ctx context.Context, cfg ObjectStoreConfig, logger *slog.Logger) (*MinioClient, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region, logger); err != nil {
		return nil, err
	}

	base := cfg.PublicBaseURL
	if base == "" {
		base = client.EndpointURL().String()
	}
	return &MinioClient{client: client, bucket: cfg.Bucket, baseURL: base}, nil
}

// ensureBucket creates bucket if it doesn't exist.
func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string, logger *slog.Logger) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		logger.Debug("bucket exists", "bucket", bucket)
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("error creating bucket: %w", err)
	}
	logger.Info("created bucket", "bucket", bucket)
	return nil
}

// PutObject implements ObjectClient.
func (c *MinioClient) PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return objectURL(c.baseURL, c.bucket, key), nil
}

// DeleteObject implements ObjectClient.
func (c *MinioClient) DeleteObject(ctx context.Context, key string) error {
	return c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
}
