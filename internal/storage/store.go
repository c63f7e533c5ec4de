// internal/storage/store.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"photobook/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means another writer already owns the row: the photo left
	// PROCESSING, or the thumbnail size class already exists.
	ErrConflict = errors.New("conflict")
)

// Store is the Photo Directory: durable records for photos and thumbnails.
// Implementations are safe for concurrent use.
type Store interface {
	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	// UpdatePhoto writes status, dimensions and metadata in one statement.
	UpdatePhoto(ctx context.Context, p *models.Photo) error
	// FinishPhoto is UpdatePhoto guarded by status = PROCESSING. It returns
	// ErrConflict when the photo is gone or already terminal.
	FinishPhoto(ctx context.Context, p *models.Photo) error
	DeletePhoto(ctx context.Context, id uuid.UUID) error
	FindStalePhotos(ctx context.Context, before time.Time) ([]uuid.UUID, error)

	CreateThumbnail(ctx context.Context, t *models.PhotoThumbnail) error
	FindThumbnails(ctx context.Context, photoID uuid.UUID) ([]models.PhotoThumbnail, error)
	DeleteThumbnail(ctx context.Context, id uuid.UUID) error
	DeleteThumbnails(ctx context.Context, photoID uuid.UUID) error

	Close()
}

// Open connects to the configured driver and applies migrations.
func Open(ctx context.Context, cfg models.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewStorage(ctx, cfg.URL)
	case "sqlite":
		return NewSQLiteStorage(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

const thumbnailOrder = `ORDER BY CASE size WHEN 'SMALL' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END`

func encodeMetadata(m *models.Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeMetadata(raw []byte) (*models.Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m models.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
