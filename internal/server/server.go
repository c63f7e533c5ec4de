package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"photobook/internal/blobstore"
	"photobook/internal/logging"
	"photobook/internal/models"
	"photobook/internal/pipeline"
	"photobook/internal/storage"
)

// Photos is the part of the pipeline the HTTP API drives.
type Photos interface {
	Ingest(ctx context.Context, ownerID uuid.UUID, items []pipeline.Upload) []uuid.UUID
	Get(ctx context.Context, photoID uuid.UUID) (*pipeline.PhotoView, error)
	URL(ctx context.Context, photoID uuid.UUID, size string) (string, error)
	Delete(ctx context.Context, photoID uuid.UUID) error
}

// SignedFiles serves links handed out by the local blob store.
type SignedFiles interface {
	Verify(bucket blobstore.Bucket, key, expires, signature string) error
	Download(ctx context.Context, bucket blobstore.Bucket, key string) ([]byte, error)
}

type Server struct {
	cfg    models.ServerConfig
	router *gin.Engine
	http   *http.Server
	photos Photos
	files  SignedFiles
}

// NewServer wires the routes. files may be nil when blobs are served by S3.
func NewServer(cfg models.ServerConfig, photos Photos, files SignedFiles, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger.With().Str("module", "http").Logger()))

	s := &Server{cfg: cfg, router: r, photos: photos, files: files}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/photos", s.handleUpload)
	r.GET("/photos/:id", s.handleGetPhoto)
	r.GET("/photos/:id/url", s.handleGetURL)
	r.DELETE("/photos/:id", s.handleDeletePhoto)
	if files != nil {
		r.GET("/files/:bucket/*key", s.handleFile)
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	ownerID, err := uuid.Parse(c.PostForm("owner_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: invalid owner_id", op)})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: no files", op)})
		return
	}

	items := make([]pipeline.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			logging.ExtractLogger(c.Request.Context()).Error().Err(err).Str("filename", fh.Filename).Msg("Failed to open uploaded file")
			continue
		}
		defer f.Close()
		items = append(items, pipeline.Upload{
			Filename:    fh.Filename,
			ContentType: declaredContentType(fh),
			Size:        fh.Size,
			Body:        f,
		})
	}

	ids := s.photos.Ingest(c.Request.Context(), ownerID, items)
	c.JSON(http.StatusCreated, gin.H{"photo_ids": ids})
}

// declaredContentType passes the part's Content-Type through. The generic
// octet-stream default that most clients send carries no information, so it
// is left for the pipeline to infer from the filename.
func declaredContentType(fh *multipart.FileHeader) string {
	ct := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if ct == "application/octet-stream" {
		return ""
	}
	return ct
}

func (s *Server) handleGetPhoto(c *gin.Context) {
	const op = "server.handleGetPhoto"

	id, ok := photoID(c, op)
	if !ok {
		return
	}
	view, err := s.photos.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetURL(c *gin.Context) {
	const op = "server.handleGetURL"

	id, ok := photoID(c, op)
	if !ok {
		return
	}
	url, err := s.photos.URL(c.Request.Context(), id, strings.ToLower(c.DefaultQuery("size", "original")))
	if err != nil {
		writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) handleDeletePhoto(c *gin.Context) {
	const op = "server.handleDeletePhoto"

	id, ok := photoID(c, op)
	if !ok {
		return
	}
	if err := s.photos.Delete(c.Request.Context(), id); err != nil {
		writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFile(c *gin.Context) {
	const op = "server.handleFile"

	bucket, ok := blobstore.ParseBucket(c.Param("bucket"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s: unknown bucket", op)})
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if err := s.files.Verify(bucket, key, c.Query("expires"), c.Query("signature")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	data, err := s.files.Download(c.Request.Context(), bucket, key)
	if err != nil {
		writeError(c, op, err)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func photoID(c *gin.Context, op string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		logging.ExtractLogger(c.Request.Context()).Error().Err(err).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
}
