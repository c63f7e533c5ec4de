package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"photobook/internal/blobstore"
	"photobook/internal/models"
	"photobook/internal/storage"
)

var testThumbs = models.ThumbnailConfig{Small: 50, Medium: 100, Large: 150, Quality: 0.8}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (s *recordingScheduler) Schedule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, id)
	return nil
}

// flakyBlobs fails uploads whose key matches failKey.
type flakyBlobs struct {
	BlobStore
	failKey func(bucket blobstore.Bucket, key string) bool
}

func (f *flakyBlobs) Upload(ctx context.Context, bucket blobstore.Bucket, key string, data []byte, contentType string) error {
	if f.failKey != nil && f.failKey(bucket, key) {
		return errors.New("storage unavailable")
	}
	return f.BlobStore.Upload(ctx, bucket, key, data, contentType)
}

type countingDirectory struct {
	Directory
	mu      sync.Mutex
	created int
}

func (d *countingDirectory) CreatePhoto(ctx context.Context, p *models.Photo) error {
	d.mu.Lock()
	d.created++
	d.mu.Unlock()
	return d.Directory.CreatePhoto(ctx, p)
}

type testEnv struct {
	blobs     *blobstore.Local
	flaky     *flakyBlobs
	dir       *countingDirectory
	scheduler *recordingScheduler
	pipeline  *Pipeline
	worker    *Worker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	local, err := blobstore.NewLocal(models.BlobConfig{
		Buckets: models.BucketsConfig{Originals: "originals", Thumbnails: "thumbnails"},
		Local:   models.LocalBlobConfig{Path: t.TempDir(), SigningKey: "test"},
	}, "http://localhost")
	require.NoError(t, err)
	require.NoError(t, local.EnsureBuckets(ctx))

	store, err := storage.NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "photos.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	env := &testEnv{
		blobs:     local,
		flaky:     &flakyBlobs{BlobStore: local},
		dir:       &countingDirectory{Directory: store},
		scheduler: &recordingScheduler{},
	}
	settings := Settings{AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "webp"}, PresignTTL: time.Minute}
	env.pipeline = New(env.flaky, env.dir, env.scheduler, settings, zerolog.Nop())
	env.worker = NewWorker(env.flaky, env.dir, testThumbs, zerolog.Nop())
	return env
}

// deriveAll runs every scheduled job synchronously.
func (e *testEnv) deriveAll(t *testing.T) {
	t.Helper()
	e.scheduler.mu.Lock()
	ids := append([]uuid.UUID(nil), e.scheduler.ids...)
	e.scheduler.mu.Unlock()
	for _, id := range ids {
		_ = e.worker.Derive(context.Background(), id)
	}
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

type zipEntry struct {
	name string
	data []byte
}

func zipBytes(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		if strings.HasSuffix(e.name, "/") {
			_, err := zw.Create(e.name)
			require.NoError(t, err)
			continue
		}
		f, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func upload(name, contentType string, data []byte) Upload {
	return Upload{Filename: name, ContentType: contentType, Size: int64(len(data)), Body: bytes.NewReader(data)}
}
