package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultUploadTimeout = 60 * time.Second

// MinIOStorage is a thin wrapper around the minio client used by the document service.
type MinIOStorage struct {
	client    *minio.Client
	bucket    string
	prefix    string
	timeout   time.Duration
	newSuffix func() string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg *MinIOConfig) (*MinIOStorage, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{
		client:    mc,
		bucket:    cfg.Bucket,
		prefix:    cfg.KeyPrefix,
		timeout:   cfg.UploadTimeout,
		newSuffix: func() string { return uuid.New().String() },
	}
	if s.prefix == "" {
		s.prefix = "documents"
	}
	if s.timeout <= 0 {
		s.timeout = defaultUploadTimeout
	}
	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Upload stores the reader under a freshly generated key and returns the key
// together with the display name. The call is bounded by the configured
// upload timeout.
func (s *MinIOStorage) Upload(ctx context.Context, fileName string, reader io.Reader, size int64, contentType string) (string, string, error) {
	name := displayName(fileName)
	if name == "" {
		return "", "", errors.New("file name is empty")
	}
	key := objectKey(s.prefix, s.newSuffix(), name)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, name, nil
}

// Ping reports whether the bucket is reachable; used by the readiness check.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

func objectKey(prefix, suffix, name string) string {
	return fmt.Sprintf("%s/%s-%s", strings.Trim(prefix, "/"), suffix, name)
}

// displayName strips any client supplied directories from the upload name.
func displayName(fileName string) string {
	n := strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/")
	n = path.Base(n)
	if n == "." || n == "/" {
		return ""
	}
	return n
}
