package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

// Upload is one named payload handed to Ingest.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type itemKind int

const (
	kindUnsupported itemKind = iota
	kindImage
	kindArchive
)

func (p *Pipeline) classify(filename string) itemKind {
	ext := fileExtension(filename)
	if ext == "zip" {
		return kindArchive
	}
	if _, ok := p.allowed[ext]; ok {
		return kindImage
	}
	return kindUnsupported
}

// Ingest registers every image in items, expanding zip archives, and returns
// the ids of the photos that were registered. A failing item is logged and
// skipped; it never aborts the rest of the batch.
func (p *Pipeline) Ingest(ctx context.Context, ownerID uuid.UUID, items []Upload) []uuid.UUID {
	log := p.logger.With().Str("owner_id", ownerID.String()).Logger()
	log.Info().Int("files", len(items)).Msg("Starting photo upload")

	ids := []uuid.UUID{}
	for _, item := range items {
		itemLog := log.With().Str("filename", item.Filename).Logger()
		if item.Filename == "" {
			itemLog.Warn().Msg("Skipping file with empty filename")
			skippedTotal.WithLabelValues("empty_name").Inc()
			continue
		}

		switch p.classify(item.Filename) {
		case kindArchive:
			registered, err := p.ingestArchive(ctx, ownerID, item, itemLog)
			ids = append(ids, registered...)
			if err != nil {
				itemLog.Error().Err(err).Msg("Failed to process archive")
			}
		case kindImage:
			id, err := p.ingestImage(ctx, ownerID, item)
			if err != nil {
				itemLog.Error().Err(err).Msg("Failed to process file")
				continue
			}
			ids = append(ids, id)
		default:
			itemLog.Warn().Err(ErrUnsupportedFile).Msg("Skipping unsupported file")
			skippedTotal.WithLabelValues("unsupported").Inc()
		}
	}

	log.Info().Int("registered", len(ids)).Msg("Completed photo upload")
	return ids
}

// UploadOne ingests a single item and returns its photo id.
func (p *Pipeline) UploadOne(ctx context.Context, ownerID uuid.UUID, item Upload) (uuid.UUID, error) {
	ids := p.Ingest(ctx, ownerID, []Upload{item})
	if len(ids) == 0 {
		return uuid.Nil, ErrNoPhotoRegistered
	}
	return ids[0], nil
}

func (p *Pipeline) ingestImage(ctx context.Context, ownerID uuid.UUID, item Upload) (uuid.UUID, error) {
	const op = "pipeline.ingestImage"

	data, err := readAll(item)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	contentType := item.ContentType
	if contentType == "" {
		contentType = contentTypeFor(item.Filename)
	}
	return p.Register(ctx, ownerID, item.Filename, contentType, data)
}

// ingestArchive registers each qualifying entry of a zip archive. An entry
// that cannot be read is logged and skipped. When the central directory is
// unreadable the entries are walked in order instead, and whatever preceded
// the damage is still registered.
func (p *Pipeline) ingestArchive(ctx context.Context, ownerID uuid.UUID, item Upload, log zerolog.Logger) ([]uuid.UUID, error) {
	const op = "pipeline.ingestArchive"

	data, err := readAll(item)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ids := []uuid.UUID{}
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Warn().Err(err).Msg("Archive directory unreadable, scanning entries in order")
		walkErr := walkLocalEntries(data, func(name string, content []byte, entryErr error) {
			if id, ok := p.registerEntry(ctx, ownerID, name, func() ([]byte, error) { return content, entryErr }, log); ok {
				ids = append(ids, id)
			}
		})
		if walkErr != nil {
			skippedTotal.WithLabelValues("bad_archive").Inc()
			log.Info().Int("registered", len(ids)).Msg("Extracted photos from damaged archive")
			return ids, fmt.Errorf("%s: %w", op, walkErr)
		}
	} else {
		for _, entry := range archive.File {
			if entry.FileInfo().IsDir() {
				continue
			}
			if id, ok := p.registerEntry(ctx, ownerID, entry.Name, func() ([]byte, error) { return readEntry(entry) }, log); ok {
				ids = append(ids, id)
			}
		}
	}

	log.Info().Int("registered", len(ids)).Msg("Extracted photos from archive")
	return ids, nil
}

// registerEntry registers one archive entry under its base name when it is an
// image. read is only called for images.
func (p *Pipeline) registerEntry(ctx context.Context, ownerID uuid.UUID, name string, read func() ([]byte, error), log zerolog.Logger) (uuid.UUID, bool) {
	if strings.HasSuffix(name, "/") {
		return uuid.Nil, false
	}
	filename := baseName(name)
	entryLog := log.With().Str("entry", name).Logger()
	if p.classify(filename) != kindImage {
		entryLog.Debug().Msg("Skipping non-image entry in archive")
		skippedTotal.WithLabelValues("unsupported").Inc()
		return uuid.Nil, false
	}

	content, err := read()
	if err != nil {
		entryLog.Error().Err(err).Msg("Failed to read archive entry")
		skippedTotal.WithLabelValues("bad_entry").Inc()
		return uuid.Nil, false
	}
	id, err := p.Register(ctx, ownerID, filename, contentTypeFor(filename), content)
	if err != nil {
		entryLog.Error().Err(err).Msg("Failed to store archive entry")
		return uuid.Nil, false
	}
	return id, true
}

// readEntry opens one entry and always releases it before returning.
func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readAll(item Upload) ([]byte, error) {
	if item.Body == nil {
		return nil, fmt.Errorf("%s: no content", item.Filename)
	}
	if item.Size > 0 {
		var buf bytes.Buffer
		buf.Grow(int(item.Size))
		_, err := buf.ReadFrom(item.Body)
		return buf.Bytes(), err
	}
	return io.ReadAll(item.Body)
}
