package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photobook/internal/models"
)

// Bucket is a logical bucket. Drivers map it to a physical bucket name.
type Bucket string

const (
	Originals  Bucket = "originals"
	Thumbnails Bucket = "thumbnails"
)

var ErrNotFound = errors.New("blob not found")

// Gateway is the object storage used for originals and derived thumbnails.
// Implementations are safe for concurrent use on independent keys.
type Gateway interface {
	Upload(ctx context.Context, bucket Bucket, key string, data []byte, contentType string) error
	Download(ctx context.Context, bucket Bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket Bucket, key string) error
	Presign(ctx context.Context, bucket Bucket, key string, ttl time.Duration) (string, error)
	EnsureBuckets(ctx context.Context) error
}

func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(s) {
	case Originals, Thumbnails:
		return Bucket(s), true
	}
	return "", false
}

func bucketNames(cfg models.BucketsConfig) map[Bucket]string {
	return map[Bucket]string{
		Originals:  cfg.Originals,
		Thumbnails: cfg.Thumbnails,
	}
}

// Open builds the configured gateway. publicURL is used by the local driver
// to build signed download links.
func Open(ctx context.Context, cfg models.BlobConfig, publicURL string) (Gateway, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3(ctx, cfg)
	case "local":
		return NewLocal(cfg, publicURL)
	default:
		return nil, fmt.Errorf("unsupported blob driver: %s", cfg.Driver)
	}
}
