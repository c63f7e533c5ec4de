package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	_, err = New("loud", "json")
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := AttachLoggerToContext(&logger, context.Background())

	ExtractLogger(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")

	// no logger attached: must not panic
	ExtractLogger(context.Background()).Info().Msg("dropped")
}

func TestLogPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	func() {
		defer LogPanics(&logger)
		panic("boom")
	}()
	assert.Contains(t, buf.String(), "boom")
}
