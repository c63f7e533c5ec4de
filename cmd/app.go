package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"photobook/internal/blobstore"
	"photobook/internal/logging"
	"photobook/internal/models"
	"photobook/internal/pipeline"
	"photobook/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// app holds what both serve and worker need: records, blobs and a running
// derivation pool.
type app struct {
	cfg    *models.Config
	logger zerolog.Logger
	store  storage.Store
	blobs  blobstore.Gateway
	pool   *pipeline.Pool
}

func loadConfig() (*models.Config, zerolog.Logger, error) {
	cfg, err := models.LoadConfig(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid log.level: %w", err)
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context) (*app, error) {
	const op = "main.newApp"

	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	blobs, err := blobstore.Open(ctx, cfg.Blob, cfg.Server.PublicURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	worker := pipeline.NewWorker(blobs, store, cfg.Thumbnails, logger)
	pool := pipeline.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, worker.Derive, logger)

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("blob", cfg.Blob.Driver).
		Str("queue", cfg.Queue.Driver).
		Int("workers", cfg.Worker.Concurrency).
		Msg("Initialized")

	return &app{cfg: cfg, logger: logger, store: store, blobs: blobs, pool: pool}, nil
}

// rescheduleStale recovers photos whose jobs were lost by an earlier process.
// A failure is logged; the next start tries again.
func (a *app) rescheduleStale(ctx context.Context, scheduler pipeline.Scheduler) {
	if _, err := pipeline.RescheduleStale(ctx, a.store, scheduler, a.cfg.Worker.StaleAfterDuration(), a.logger); err != nil {
		a.logger.Error().Err(err).Msg("Failed to reschedule stale photos")
	}
}

// close drains the pool before releasing the database.
func (a *app) close() {
	a.logger.Info().Msg("Waiting for derivation jobs...")
	if a.pool.Close(shutdownTimeout) {
		a.logger.Info().Msg("Derivation jobs finished")
	} else {
		a.logger.Warn().Dur("timeout", shutdownTimeout).Msg("Derivation jobs did not finish by the deadline")
	}
	a.store.Close()
}
