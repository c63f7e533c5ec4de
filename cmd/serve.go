package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"photobook/internal/blobstore"
	"photobook/internal/pipeline"
	"photobook/internal/queue"
	"photobook/internal/server"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with in-process derivation workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var scheduler pipeline.Scheduler = a.pool
			var wg sync.WaitGroup
			consumeCtx, cancelConsume := context.WithCancel(context.Background())
			defer cancelConsume()

			if a.cfg.Queue.Driver == "kafka" {
				producer := queue.NewProducer(a.cfg.Queue.Kafka)
				defer producer.Close()
				scheduler = producer

				consumer := queue.NewConsumer(a.cfg.Queue.Kafka, a.logger)
				defer consumer.Close()
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := consumer.Run(consumeCtx, a.pool.Submit); err != nil {
						a.logger.Error().Err(err).Msg("Kafka consumer stopped")
					}
				}()
			}

			a.rescheduleStale(ctx, scheduler)

			p := pipeline.New(a.blobs, a.store, scheduler, pipeline.Settings{
				AllowedExtensions: a.cfg.Upload.AllowedExtensions,
				PresignTTL:        a.cfg.Blob.PresignTTLDuration(),
			}, a.logger)

			var files server.SignedFiles
			if local, ok := a.blobs.(*blobstore.Local); ok {
				files = local
			}
			srv := server.NewServer(a.cfg.Server, p, files, a.logger)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", a.cfg.Server.Addr).Msg("Serving the API")
				errCh <- srv.Start()
			}()

			select {
			case <-ctx.Done():
				a.logger.Info().Msg("Shutting down")
			case err = <-errCh:
				if err != nil {
					a.logger.Error().Err(err).Msg("Server shut down unexpectedly")
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("Server did not shut down gracefully")
			}
			cancelConsume()
			wg.Wait()
			return err
		},
	}
}
