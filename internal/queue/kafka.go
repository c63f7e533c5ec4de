// Package queue carries derivation jobs over Kafka so the API and the
// workers can run as separate processes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"photobook/internal/models"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes one message per photo, keyed and valued by its id.
type Producer struct {
	writer MessageWriter
}

func NewProducer(cfg models.KafkaConfig) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

// Schedule makes Producer a pipeline scheduler.
func (p *Producer) Schedule(ctx context.Context, photoID uuid.UUID) error {
	const op = "queue.Producer.Schedule"

	id := []byte(photoID.String())
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: id, Value: id}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// SubmitFunc hands a job to local workers. It may block for backpressure.
type SubmitFunc func(ctx context.Context, photoID uuid.UUID) error

// Consumer reads derivation jobs and feeds them to a SubmitFunc. An offset is
// committed once its job is handed to the pool, before derivation runs, so a
// crash mid-derivation loses the message; the photo stays PROCESSING until a
// starting process reschedules it (pipeline.RescheduleStale).
type Consumer struct {
	reader MessageReader
	logger zerolog.Logger
	boff   backoff.Backoff
}

func NewConsumer(cfg models.KafkaConfig, logger zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newConsumer(reader, logger)
}

func newConsumer(reader MessageReader, logger zerolog.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		logger: logger.With().Str("module", "kafka consumer").Logger(),
		boff: backoff.Backoff{
			Min: 100 * time.Millisecond,
			Max: 30 * time.Second,
		},
	}
}

// Run consumes until ctx is cancelled. Read errors are retried with
// exponential backoff; malformed messages are committed and dropped.
func (c *Consumer) Run(ctx context.Context, submit SubmitFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			dur := c.boff.Duration()
			c.logger.Error().Err(err).Dur("retrying after", dur).Msg("Failed to read message")
			if !sleep(ctx, dur) {
				return nil
			}
			continue
		}
		c.boff.Reset()

		log := c.logger.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()
		photoID, err := ParseMessage(msg)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed message")
		} else if err := submit(ctx, photoID); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("queue.Consumer.Run: submit %s: %w", photoID, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func ParseMessage(msg kafka.Message) (uuid.UUID, error) {
	id, err := uuid.ParseBytes(msg.Value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid photo id %q: %w", msg.Value, err)
	}
	return id, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
