package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryJob(t *testing.T) {
	var done atomic.Int32
	pool := NewPool(3, 2, func(ctx context.Context, id uuid.UUID) error {
		done.Add(1)
		return nil
	}, zerolog.Nop())

	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(context.Background(), uuid.New()))
	}
	require.True(t, pool.Close(5*time.Second))
	assert.Equal(t, int32(20), done.Load())

	assert.ErrorIs(t, pool.Schedule(context.Background(), uuid.New()), ErrPoolClosed)
}

func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 0, func(ctx context.Context, id uuid.UUID) error {
		<-release
		return nil
	}, zerolog.Nop())

	require.NoError(t, pool.Submit(context.Background(), uuid.New()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, uuid.New()), context.DeadlineExceeded)

	close(release)
	assert.True(t, pool.Close(5*time.Second))
}

func TestPoolCloseTimeout(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(ctx context.Context, id uuid.UUID) error {
		<-release
		return nil
	}, zerolog.Nop())

	require.NoError(t, pool.Submit(context.Background(), uuid.New()))
	assert.False(t, pool.Close(20*time.Millisecond))

	close(release)
	assert.True(t, pool.Close(5*time.Second))
}

func TestPoolSurvivesPanics(t *testing.T) {
	var done atomic.Int32
	pool := NewPool(1, 4, func(ctx context.Context, id uuid.UUID) error {
		if done.Add(1) == 1 {
			panic("bad job")
		}
		return nil
	}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(context.Background(), uuid.New()))
	}
	require.True(t, pool.Close(5*time.Second))
	assert.Equal(t, int32(3), done.Load())
}

func TestPoolQueueDepthTracksWaitingJobs(t *testing.T) {
	base := testutil.ToFloat64(queueDepth)
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	pool := NewPool(1, 1, func(ctx context.Context, id uuid.UUID) error {
		started <- struct{}{}
		<-release
		return nil
	}, zerolog.Nop())

	require.NoError(t, pool.Submit(context.Background(), uuid.New()))
	<-started
	assert.Equal(t, base, testutil.ToFloat64(queueDepth))

	require.NoError(t, pool.Submit(context.Background(), uuid.New()))
	assert.Equal(t, base+1, testutil.ToFloat64(queueDepth))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, uuid.New()), context.DeadlineExceeded)
	assert.Equal(t, base+1, testutil.ToFloat64(queueDepth))

	close(release)
	require.True(t, pool.Close(5*time.Second))
	assert.Equal(t, base, testutil.ToFloat64(queueDepth))
}
