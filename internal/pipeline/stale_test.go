package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobook/internal/models"
)

func TestRescheduleStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// left PROCESSING by a worker that died after its queue commit
	lost := models.NewPhoto(uuid.New(), uuid.New(), "o/lost.png", "lost.png", "image/png", 1)
	lost.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, env.dir.CreatePhoto(ctx, lost))

	fresh, err := env.pipeline.Register(ctx, uuid.New(), "fresh.png", "image/png", pngBytes(t, 10, 10))
	require.NoError(t, err)

	sched := &recordingScheduler{}
	n, err := RescheduleStale(ctx, env.dir, sched, 10*time.Minute, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{lost.ID}, sched.ids)
	assert.NotContains(t, sched.ids, fresh)
}

func TestRescheduleStaleStopsOnScheduleError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lost := models.NewPhoto(uuid.New(), uuid.New(), "o/lost.png", "lost.png", "image/png", 1)
	lost.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, env.dir.CreatePhoto(ctx, lost))

	n, err := RescheduleStale(ctx, env.dir, &recordingScheduler{err: errors.New("queue down")}, time.Minute, zerolog.Nop())
	require.Error(t, err)
	assert.Zero(t, n)
}
