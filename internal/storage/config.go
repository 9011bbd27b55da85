package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrURLConfig = errors.New("blob store bucket and region must be configured")

// MinIOConfig holds the blob store connection configuration. The same client
// talks to MinIO in development and to S3 in production.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	Region        string
	UploadTimeout time.Duration
	KeyPrefix     string
}

// S3URLs derives public object URLs using the S3 virtual-hosted naming
// convention: https://{bucket}.s3.{region}.amazonaws.com/{key}.
type S3URLs struct {
	Bucket string
	Region string
}

// FileURL returns the public URL for key, or ErrURLConfig when bucket or
// region is unset.
func (u S3URLs) FileURL(key string) (string, error) {
	if strings.TrimSpace(u.Bucket) == "" || strings.TrimSpace(u.Region) == "" {
		return "", ErrURLConfig
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Bucket, u.Region, escapeKey(key)), nil
}

// escapeKey escapes each path segment while keeping the "/" separators.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
