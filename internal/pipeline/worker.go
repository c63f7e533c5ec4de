package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photobook/internal/blobstore"
	"photobook/internal/models"
	"photobook/internal/storage"
)

// Worker derives thumbnails and metadata for one photo at a time. A job may
// be delivered twice; the UNIQUE (photo_id, size) rows and the guarded final
// write decide which delivery owns the photo.
type Worker struct {
	blobs  BlobStore
	dir    Directory
	cfg    models.ThumbnailConfig
	logger zerolog.Logger
}

func NewWorker(blobs BlobStore, dir Directory, cfg models.ThumbnailConfig, logger zerolog.Logger) *Worker {
	return &Worker{
		blobs:  blobs,
		dir:    dir,
		cfg:    cfg,
		logger: logger.With().Str("module", "derivation").Logger(),
	}
}

// Derive moves a PROCESSING photo to READY or FAILED. Photos that are gone,
// already terminal, or owned by a concurrent delivery are skipped.
// The returned error is for logging only; the outcome lives in the record.
func (w *Worker) Derive(ctx context.Context, photoID uuid.UUID) error {
	const op = "pipeline.Worker.Derive"
	log := w.logger.With().Str("photo_id", photoID.String()).Logger()

	photo, err := w.dir.GetPhoto(ctx, photoID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Msg("Photo vanished before derivation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if photo.Status != models.StatusProcessing {
		log.Debug().Str("status", string(photo.Status)).Msg("Photo already derived, skipping")
		return nil
	}

	start := time.Now()
	inFlight.Inc()
	defer inFlight.Dec()

	log.Info().Msg("Starting thumbnail generation")
	err = w.derive(ctx, photo, log)
	if errors.Is(err, storage.ErrConflict) {
		log.Info().Err(err).Msg("Photo is handled by another job, skipping")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate thumbnails")
		w.fail(ctx, photo, log)
		derivationDuration.WithLabelValues(string(models.StatusFailed)).Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s: %w", op, err)
	}

	derivationsTotal.WithLabelValues(string(models.StatusReady)).Inc()
	derivationDuration.WithLabelValues(string(models.StatusReady)).Observe(time.Since(start).Seconds())
	log.Info().Dur("took", time.Since(start)).Msg("Completed thumbnail generation")
	return nil
}

// derive leaves no rows or blobs of its own behind when it fails. On
// storage.ErrConflict it also leaves the other job's rows alone.
func (w *Worker) derive(ctx context.Context, photo *models.Photo, log zerolog.Logger) error {
	original, err := w.blobs.Download(ctx, blobstore.Originals, photo.StorageKey)
	if err != nil {
		return err
	}
	img, err := DecodeImage(original)
	if err != nil {
		return err
	}

	meta := ExtractMetadata(original)
	bounds := img.Bounds()

	var created []models.PhotoThumbnail
	for _, size := range models.SizeClasses {
		thumb, err := w.renderAndStore(ctx, photo, img, size)
		if thumb != nil {
			created = append(created, *thumb)
		}
		if err != nil {
			w.rollback(ctx, created, log)
			return fmt.Errorf("%s thumbnail: %w", size.Lower(), err)
		}
		log.Debug().Str("size", string(size)).Int("width", thumb.Width).Int("height", thumb.Height).Msg("Generated thumbnail")
	}

	photo.MarkReady(bounds.Dx(), bounds.Dy(), meta)
	if err := w.dir.FinishPhoto(ctx, photo); err != nil {
		w.rollback(ctx, created, log)
		return err
	}
	return nil
}

// renderAndStore returns a non-nil thumbnail whenever this job owns its blob,
// even if the record could not be created, so rollback can remove the blob.
// When the size class already has a row the blob belongs to that row's job
// and nil is returned with storage.ErrConflict.
func (w *Worker) renderAndStore(ctx context.Context, photo *models.Photo, img image.Image, size models.SizeClass) (*models.PhotoThumbnail, error) {
	r, err := Render(img, w.cfg.MaxDimension(size), w.cfg.Quality)
	if err != nil {
		return nil, err
	}

	key := ThumbnailKey(photo.StorageKey, size)
	if err := w.blobs.Upload(ctx, blobstore.Thumbnails, key, r.Data, "image/jpeg"); err != nil {
		return nil, err
	}

	thumb := models.NewThumbnail(photo.ID, size, key, r.Width, r.Height, int64(len(r.Data)))
	err = w.dir.CreateThumbnail(ctx, thumb)
	if errors.Is(err, storage.ErrConflict) {
		return nil, err
	}
	if err != nil {
		return thumb, err
	}
	return thumb, nil
}

// rollback removes the thumbnails this job created, blobs and rows. Failures
// are logged; the caller still decides the photo's outcome.
func (w *Worker) rollback(ctx context.Context, created []models.PhotoThumbnail, log zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, t := range created {
		if err := w.blobs.Delete(ctx, blobstore.Thumbnails, t.StorageKey); err != nil {
			log.Error().Err(err).Str("storage_key", t.StorageKey).Msg("Failed to delete thumbnail during rollback")
		}
		if err := w.dir.DeleteThumbnail(ctx, t.ID); err != nil {
			log.Error().Err(err).Str("thumbnail_id", t.ID.String()).Msg("Failed to delete thumbnail record during rollback")
		}
	}
}

func (w *Worker) fail(ctx context.Context, photo *models.Photo, log zerolog.Logger) {
	photo.MarkFailed()
	err := w.dir.FinishPhoto(context.WithoutCancel(ctx), photo)
	if errors.Is(err, storage.ErrConflict) {
		log.Info().Msg("Photo reached a terminal state elsewhere, not marking it failed")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark photo as failed")
		return
	}
	derivationsTotal.WithLabelValues(string(models.StatusFailed)).Inc()
}
