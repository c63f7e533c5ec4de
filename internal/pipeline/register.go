package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"photobook/internal/blobstore"
	"photobook/internal/models"
)

// Register stores one original and creates its PROCESSING record, then
// schedules its derivation. The record is created only after the upload
// succeeded. It never waits for derivation.
func (p *Pipeline) Register(ctx context.Context, ownerID uuid.UUID, filename, contentType string, data []byte) (uuid.UUID, error) {
	const op = "pipeline.Register"

	if contentType == "" {
		contentType = contentTypeFor(filename)
	}
	photoID := uuid.New()
	key := StorageKey(ownerID, photoID, fileExtension(filename))
	log := p.logger.With().Str("photo_id", photoID.String()).Str("storage_key", key).Logger()

	log.Debug().Int("bytes", len(data)).Msg("Storing original")
	if err := p.blobs.Upload(ctx, blobstore.Originals, key, data, contentType); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	photo := models.NewPhoto(photoID, ownerID, key, filename, contentType, int64(len(data)))
	if err := p.dir.CreatePhoto(ctx, photo); err != nil {
		if delErr := p.blobs.Delete(context.WithoutCancel(ctx), blobstore.Originals, key); delErr != nil {
			log.Error().Err(delErr).Msg("Failed to remove orphaned original")
		}
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	registeredTotal.Inc()

	if err := p.scheduler.Schedule(ctx, photoID); err != nil {
		// the photo exists; fail it rather than leave it PROCESSING forever
		log.Error().Err(err).Msg("Failed to schedule derivation")
		photo.MarkFailed()
		if err := p.dir.FinishPhoto(context.WithoutCancel(ctx), photo); err != nil {
			log.Error().Err(err).Msg("Failed to mark unscheduled photo as failed")
			return photoID, nil
		}
		derivationsTotal.WithLabelValues(string(models.StatusFailed)).Inc()
		return photoID, nil
	}

	log.Debug().Msg("Stored photo")
	return photoID, nil
}
