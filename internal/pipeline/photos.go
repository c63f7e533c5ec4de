package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"photobook/internal/blobstore"
	"photobook/internal/models"
	"photobook/internal/storage"
)

// PhotoView is a photo together with its thumbnails.
type PhotoView struct {
	*models.Photo
	Thumbnails []models.PhotoThumbnail `json:"thumbnails"`
}

func (p *Pipeline) Get(ctx context.Context, photoID uuid.UUID) (*PhotoView, error) {
	const op = "pipeline.Get"

	photo, err := p.dir.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	thumbs, err := p.dir.FindThumbnails(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if thumbs == nil {
		thumbs = []models.PhotoThumbnail{}
	}
	return &PhotoView{Photo: photo, Thumbnails: thumbs}, nil
}

// URL presigns the original ("original") or one of the size classes.
func (p *Pipeline) URL(ctx context.Context, photoID uuid.UUID, size string) (string, error) {
	const op = "pipeline.URL"

	photo, err := p.dir.GetPhoto(ctx, photoID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if size == "" || size == "original" {
		return p.presign(ctx, blobstore.Originals, photo.StorageKey)
	}

	class, ok := models.ParseSizeClass(size)
	if !ok {
		return "", fmt.Errorf("%s: size %q: %w", op, size, storage.ErrNotFound)
	}
	thumbs, err := p.dir.FindThumbnails(ctx, photoID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	for _, t := range thumbs {
		if t.Size == class {
			return p.presign(ctx, blobstore.Thumbnails, t.StorageKey)
		}
	}
	return "", fmt.Errorf("%s: thumbnail %s: %w", op, class, storage.ErrNotFound)
}

func (p *Pipeline) presign(ctx context.Context, bucket blobstore.Bucket, key string) (string, error) {
	cacheKey := string(bucket) + "/" + key
	if url, ok := p.urls.Get(cacheKey); ok {
		urlCacheTotal.WithLabelValues("hit").Inc()
		return url, nil
	}
	urlCacheTotal.WithLabelValues("miss").Inc()

	url, err := p.blobs.Presign(ctx, bucket, key, p.ttl)
	if err != nil {
		return "", fmt.Errorf("pipeline.presign: %w", err)
	}
	p.urls.Add(cacheKey, url)
	return url, nil
}

// Delete removes a photo with its thumbnails and blobs. Blob deletion is
// best effort; records are always removed.
func (p *Pipeline) Delete(ctx context.Context, photoID uuid.UUID) error {
	const op = "pipeline.Delete"
	log := p.logger.With().Str("photo_id", photoID.String()).Logger()

	photo, err := p.dir.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	thumbs, err := p.dir.FindThumbnails(ctx, photoID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, t := range thumbs {
		p.urls.Remove(string(blobstore.Thumbnails) + "/" + t.StorageKey)
		if err := p.blobs.Delete(ctx, blobstore.Thumbnails, t.StorageKey); err != nil {
			log.Error().Err(err).Str("storage_key", t.StorageKey).Msg("Failed to delete thumbnail from storage")
		}
	}
	if err := p.dir.DeleteThumbnails(ctx, photoID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.urls.Remove(string(blobstore.Originals) + "/" + photo.StorageKey)
	if err := p.blobs.Delete(ctx, blobstore.Originals, photo.StorageKey); err != nil {
		log.Error().Err(err).Str("storage_key", photo.StorageKey).Msg("Failed to delete original from storage")
	}
	if err := p.dir.DeletePhoto(ctx, photoID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info().Msg("Deleted photo")
	return nil
}
