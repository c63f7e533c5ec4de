package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"photobook/internal/models"
)

// SQLiteStorage is the single-node Photo Directory used for local runs and
// tests. Timestamps are stored as unix nanoseconds.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	const op = "storage.NewSQLiteStorage"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// one connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStorage) CreatePhoto(ctx context.Context, p *models.Photo) error {
	const op = "storage.SQLiteStorage.CreatePhoto"

	meta, err := encodeMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO photos (`+photoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.OwnerID.String(), p.StorageKey, p.OriginalFilename, p.MimeType, p.FileSize,
		p.Width, p.Height, nullableText(meta), string(p.Status), p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStorage) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	const op = "storage.SQLiteStorage.GetPhoto"

	var (
		p                models.Photo
		photoID, ownerID string
		width, height    sql.NullInt64
		meta             sql.NullString
		status           string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id.String()).
		Scan(&photoID, &ownerID, &p.StorageKey, &p.OriginalFilename, &p.MimeType, &p.FileSize,
			&width, &height, &meta, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p.ID, err = uuid.Parse(photoID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.Width = nullableInt(width)
	p.Height = nullableInt(height)
	if meta.Valid {
		if p.Metadata, err = decodeMetadata([]byte(meta.String)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	p.Status = models.Status(status)
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return &p, nil
}

func (s *SQLiteStorage) UpdatePhoto(ctx context.Context, p *models.Photo) error {
	const op = "storage.SQLiteStorage.UpdatePhoto"

	meta, err := encodeMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE photos SET status = ?, width = ?, height = ?, exif_data = ?, updated_at = ? WHERE id = ?`,
		string(p.Status), p.Width, p.Height, nullableText(meta), p.UpdatedAt.UnixNano(), p.ID.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) FinishPhoto(ctx context.Context, p *models.Photo) error {
	const op = "storage.SQLiteStorage.FinishPhoto"

	meta, err := encodeMetadata(p.Metadata)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE photos SET status = ?, width = ?, height = ?, exif_data = ?, updated_at = ?
		 WHERE id = ? AND status = 'PROCESSING'`,
		string(p.Status), p.Width, p.Height, nullableText(meta), p.UpdatedAt.UnixNano(), p.ID.String())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %s: %w", op, p.ID, ErrConflict)
	}
	return nil
}

func (s *SQLiteStorage) FindStalePhotos(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	const op = "storage.SQLiteStorage.FindStalePhotos"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM photos WHERE status = 'PROCESSING' AND updated_at < ? ORDER BY created_at`,
		before.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (s *SQLiteStorage) DeletePhoto(ctx context.Context, id uuid.UUID) error {
	const op = "storage.SQLiteStorage.DeletePhoto"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStorage) CreateThumbnail(ctx context.Context, t *models.PhotoThumbnail) error {
	const op = "storage.SQLiteStorage.CreateThumbnail"
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO photo_thumbnails (id, photo_id, size, storage_key, width, height, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.PhotoID.String(), string(t.Size), t.StorageKey, t.Width, t.Height, t.FileSize, t.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %s %s: %w", op, t.PhotoID, t.Size, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteThumbnail(ctx context.Context, id uuid.UUID) error {
	const op = "storage.SQLiteStorage.DeleteThumbnail"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM photo_thumbnails WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStorage) FindThumbnails(ctx context.Context, photoID uuid.UUID) ([]models.PhotoThumbnail, error) {
	const op = "storage.SQLiteStorage.FindThumbnails"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, photo_id, size, storage_key, width, height, file_size, created_at
		 FROM photo_thumbnails WHERE photo_id = ? `+thumbnailOrder, photoID.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var thumbs []models.PhotoThumbnail
	for rows.Next() {
		var (
			t       models.PhotoThumbnail
			id, ref string
			size    string
			created int64
		)
		if err := rows.Scan(&id, &ref, &size, &t.StorageKey, &t.Width, &t.Height, &t.FileSize, &created); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if t.PhotoID, err = uuid.Parse(ref); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		t.Size = models.SizeClass(size)
		t.CreatedAt = time.Unix(0, created).UTC()
		thumbs = append(thumbs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return thumbs, nil
}

func (s *SQLiteStorage) DeleteThumbnails(ctx context.Context, photoID uuid.UUID) error {
	const op = "storage.SQLiteStorage.DeleteThumbnails"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM photo_thumbnails WHERE photo_id = ?`, photoID.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// isUniqueViolation matches both the extended and the primary result code.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
