package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photobook/internal/logging"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Handler processes one derivation job.
type Handler func(ctx context.Context, photoID uuid.UUID) error

// Pool runs derivation jobs on a fixed number of goroutines fed by a bounded
// queue. Submit blocks while the queue is full.
type Pool struct {
	jobs    chan uuid.UUID
	handler Handler
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, handler Handler, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		jobs:    make(chan uuid.UUID, queueSize),
		handler: handler,
		logger:  logger.With().Str("module", "pool").Logger(),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for id := range p.jobs {
		queueDepth.Dec()
		p.process(id)
	}
}

func (p *Pool) process(id uuid.UUID) {
	log := p.logger.With().Str("photo_id", id.String()).Logger()
	defer logging.LogPanics(&log)

	// jobs run to completion, independent of the submitter's context
	ctx := logging.AttachLoggerToContext(&log, context.Background())
	if err := p.handler(ctx, id); err != nil {
		log.Debug().Err(err).Msg("Derivation job finished with error")
	}
}

// Submit queues a job, waiting for room until ctx is done.
func (p *Pool) Submit(ctx context.Context, photoID uuid.UUID) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	// counted before the send so a worker's Dec never runs first
	queueDepth.Inc()
	select {
	case p.jobs <- photoID:
		return nil
	case <-ctx.Done():
		queueDepth.Dec()
		return ctx.Err()
	}
}

// Schedule makes Pool a Scheduler.
func (p *Pool) Schedule(ctx context.Context, photoID uuid.UUID) error {
	return p.Submit(ctx, photoID)
}

// Close stops intake and waits for queued and running jobs. It reports
// false when the timeout expired first.
func (p *Pool) Close(timeout time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
