// Package pipeline turns uploaded bytes into registered photos and derives
// their thumbnails and metadata in the background.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"photobook/internal/blobstore"
	"photobook/internal/models"
)

var (
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrDecode            = errors.New("image could not be decoded")
	ErrNoPhotoRegistered = errors.New("no photo registered")
)

// BlobStore is the object storage the pipeline reads and writes.
type BlobStore interface {
	Upload(ctx context.Context, bucket blobstore.Bucket, key string, data []byte, contentType string) error
	Download(ctx context.Context, bucket blobstore.Bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket blobstore.Bucket, key string) error
	Presign(ctx context.Context, bucket blobstore.Bucket, key string, ttl time.Duration) (string, error)
}

// Directory is the record store for photos and thumbnails.
type Directory interface {
	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	FinishPhoto(ctx context.Context, p *models.Photo) error
	DeletePhoto(ctx context.Context, id uuid.UUID) error
	FindStalePhotos(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	CreateThumbnail(ctx context.Context, t *models.PhotoThumbnail) error
	FindThumbnails(ctx context.Context, photoID uuid.UUID) ([]models.PhotoThumbnail, error)
	DeleteThumbnail(ctx context.Context, id uuid.UUID) error
	DeleteThumbnails(ctx context.Context, photoID uuid.UUID) error
}

// Scheduler hands one derivation job per registered photo to whatever runs
// them: the in-process Pool or a message queue.
type Scheduler interface {
	Schedule(ctx context.Context, photoID uuid.UUID) error
}

type Settings struct {
	AllowedExtensions []string
	PresignTTL        time.Duration
	// URLCacheSize bounds the presigned URL cache; 0 means 1024.
	URLCacheSize int
}

// Pipeline is the synchronous side: ingest, register, view and delete.
type Pipeline struct {
	blobs     BlobStore
	dir       Directory
	scheduler Scheduler
	allowed   map[string]struct{}
	ttl       time.Duration
	urls      *expirable.LRU[string, string]
	logger    zerolog.Logger
}

func New(blobs BlobStore, dir Directory, scheduler Scheduler, settings Settings, logger zerolog.Logger) *Pipeline {
	allowed := make(map[string]struct{}, len(settings.AllowedExtensions))
	for _, ext := range settings.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	ttl := settings.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	// cached links are handed out for at most half their lifetime
	cacheSize := settings.URLCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &Pipeline{
		blobs:     blobs,
		dir:       dir,
		scheduler: scheduler,
		allowed:   allowed,
		ttl:       ttl,
		urls:      expirable.NewLRU[string, string](cacheSize, nil, ttl/2),
		logger:    logger.With().Str("module", "pipeline").Logger(),
	}
}
