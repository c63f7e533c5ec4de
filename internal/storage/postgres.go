// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"photobook/internal/models"
)

type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := Migrate(db, "postgres"); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, db: db}, nil
}

func (s *Storage) Close() {
	s.db.Close()
	s.pool.Close()
}

const photoColumns = `id, owner_id, storage_key, original_filename, mime_type, file_size,
	width, height, exif_data, status, created_at, updated_at`

func (s *Storage) CreatePhoto(ctx context.Context, p *models.Photo) error {
	const op = "storage.CreatePhoto"

	meta, err := encodeMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO photos (`+photoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OwnerID, p.StorageKey, p.OriginalFilename, p.MimeType, p.FileSize,
		p.Width, p.Height, meta, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	const op = "storage.GetPhoto"

	var (
		p      models.Photo
		status string
		meta   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, id).
		Scan(&p.ID, &p.OwnerID, &p.StorageKey, &p.OriginalFilename, &p.MimeType, &p.FileSize,
			&p.Width, &p.Height, &meta, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p.Status = models.Status(status)
	if p.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

func (s *Storage) UpdatePhoto(ctx context.Context, p *models.Photo) error {
	const op = "storage.UpdatePhoto"

	meta, err := encodeMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $2, width = $3, height = $4, exif_data = $5, updated_at = $6
		 WHERE id = $1`,
		p.ID, string(p.Status), p.Width, p.Height, meta, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *Storage) FinishPhoto(ctx context.Context, p *models.Photo) error {
	const op = "storage.FinishPhoto"

	meta, err := encodeMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE photos SET status = $2, width = $3, height = $4, exif_data = $5, updated_at = $6
		 WHERE id = $1 AND status = 'PROCESSING'`,
		p.ID, string(p.Status), p.Width, p.Height, meta, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, p.ID, ErrConflict)
	}
	return nil
}

func (s *Storage) FindStalePhotos(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	const op = "storage.FindStalePhotos"

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM photos WHERE status = 'PROCESSING' AND updated_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (s *Storage) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeletePhoto"
	_, err := s.pool.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) CreateThumbnail(ctx context.Context, t *models.PhotoThumbnail) error {
	const op = "storage.CreateThumbnail"
	_, err := s.pool.Exec(ctx,
		`INSERT INTO photo_thumbnails (id, photo_id, size, storage_key, width, height, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.PhotoID, string(t.Size), t.StorageKey, t.Width, t.Height, t.FileSize, t.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %s %s: %w", op, t.PhotoID, t.Size, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) DeleteThumbnail(ctx context.Context, id uuid.UUID) error {
	const op = "storage.DeleteThumbnail"
	_, err := s.pool.Exec(ctx, `DELETE FROM photo_thumbnails WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) FindThumbnails(ctx context.Context, photoID uuid.UUID) ([]models.PhotoThumbnail, error) {
	const op = "storage.FindThumbnails"

	rows, err := s.pool.Query(ctx,
		`SELECT id, photo_id, size, storage_key, width, height, file_size, created_at
		 FROM photo_thumbnails WHERE photo_id = $1 `+thumbnailOrder, photoID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var thumbs []models.PhotoThumbnail
	for rows.Next() {
		var (
			t    models.PhotoThumbnail
			size string
		)
		if err := rows.Scan(&t.ID, &t.PhotoID, &size, &t.StorageKey, &t.Width, &t.Height, &t.FileSize, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		t.Size = models.SizeClass(size)
		thumbs = append(thumbs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return thumbs, nil
}

func (s *Storage) DeleteThumbnails(ctx context.Context, photoID uuid.UUID) error {
	const op = "storage.DeleteThumbnails"
	_, err := s.pool.Exec(ctx, `DELETE FROM photo_thumbnails WHERE photo_id = $1`, photoID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
