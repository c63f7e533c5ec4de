package blobstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"photobook/internal/models"
)

// Local stores blobs under <root>/<bucket>/<key> and hands out HMAC-signed
// links served by the HTTP API.
type Local struct {
	root       string
	names      map[Bucket]string
	publicURL  string
	signingKey []byte
	now        func() time.Time
}

func NewLocal(cfg models.BlobConfig, publicURL string) (*Local, error) {
	if cfg.Local.SigningKey == "" {
		return nil, fmt.Errorf("blobstore.NewLocal: empty signing key")
	}
	return &Local{
		root:       cfg.Local.Path,
		names:      bucketNames(cfg.Buckets),
		publicURL:  strings.TrimRight(publicURL, "/"),
		signingKey: []byte(cfg.Local.SigningKey),
		now:        time.Now,
	}, nil
}

func (l *Local) path(bucket Bucket, key string) (string, error) {
	name, ok := l.names[bucket]
	if !ok {
		return "", fmt.Errorf("unknown bucket %q", bucket)
	}
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.root, name, filepath.FromSlash(clean)), nil
}

func (l *Local) EnsureBuckets(ctx context.Context) error {
	const op = "blobstore.Local.EnsureBuckets"
	for _, name := range l.names {
		if err := os.MkdirAll(filepath.Join(l.root, name), 0o755); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (l *Local) Upload(ctx context.Context, bucket Bucket, key string, data []byte, contentType string) error {
	const op = "blobstore.Local.Upload"

	p, err := l.path(bucket, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Local) Download(ctx context.Context, bucket Bucket, key string) ([]byte, error) {
	const op = "blobstore.Local.Download"

	p, err := l.path(bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %s/%s: %w", op, bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, bucket Bucket, key string) error {
	const op = "blobstore.Local.Delete"

	p, err := l.path(bucket, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Presign returns <publicURL>/files/<bucket>/<key>?expires=<unix>&signature=<hex>.
func (l *Local) Presign(ctx context.Context, bucket Bucket, key string, ttl time.Duration) (string, error) {
	if _, err := l.path(bucket, key); err != nil {
		return "", fmt.Errorf("blobstore.Local.Presign: %w", err)
	}
	expires := l.now().Add(ttl).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", l.sign(bucket, key, expires))
	return fmt.Sprintf("%s/files/%s/%s?%s", l.publicURL, bucket, key, q.Encode()), nil
}

// Verify checks a link produced by Presign.
func (l *Local) Verify(bucket Bucket, key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry")
	}
	if l.now().Unix() > exp {
		return fmt.Errorf("link expired")
	}
	want := l.sign(bucket, key, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (l *Local) sign(bucket Bucket, key string, expires int64) string {
	mac := hmac.New(sha256.New, l.signingKey)
	fmt.Fprintf(mac, "%s\n%s\n%d", bucket, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
