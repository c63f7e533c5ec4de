package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photobook/internal/queue"
)

func workerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume derivation jobs from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Queue.Driver != "kafka" {
				return fmt.Errorf("worker requires queue.driver: kafka, got %q", a.cfg.Queue.Driver)
			}

			consumer := queue.NewConsumer(a.cfg.Queue.Kafka, a.logger)
			defer consumer.Close()

			a.rescheduleStale(ctx, a.pool)

			a.logger.Info().Strs("brokers", a.cfg.Queue.Kafka.Brokers).Str("topic", a.cfg.Queue.Kafka.Topic).Msg("Consuming derivation jobs")
			return consumer.Run(ctx, a.pool.Submit)
		},
	}
}
