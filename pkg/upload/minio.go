package upload

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig addresses an S3-compatible bucket.
type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Prefix     string
	UseSSL     bool
	MaxRetries int
}

// MinIO uploads files to an S3-compatible object store.
type MinIO struct {
	client *minio.Client
	cfg    MinIOConfig
}

// NewMinIO connects and creates the bucket if it does not exist.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		slog.Info("Created MinIO bucket", "bucket", cfg.Bucket)
	}
	return &MinIO{client: client, cfg: cfg}, nil
}

func (m *MinIO) Name() string { return "minio" }

func (m *MinIO) Upload(ctx context.Context, file string) error {
	key := objectKey(m.cfg.Prefix, file)

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 500 * time.Millisecond
	ebo.Reset()
	var b backoff.BackOff = ebo
	if m.cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(ebo, uint64(m.cfg.MaxRetries))
	}

	op := func() error {
		info, err := m.client.FPutObject(ctx, m.cfg.Bucket, key, file, minio.PutObjectOptions{
			ContentType: contentType(file),
		})
		if err != nil {
			if resp := minio.ToErrorResponse(err); resp.Code == "AccessDenied" || resp.Code == "NoSuchBucket" {
				return backoff.Permanent(err)
			}
			return err
		}
		slog.Debug("Object uploaded", "key", key, "size", info.Size, "etag", info.ETag)
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// objectKey places file under prefix using its base name.
func objectKey(prefix, file string) string {
	name := filepath.Base(file)
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
