// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusReady      Status = "READY"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

type SizeClass string

const (
	SizeSmall  SizeClass = "SMALL"
	SizeMedium SizeClass = "MEDIUM"
	SizeLarge  SizeClass = "LARGE"
)

// SizeClasses lists every size class in generation order.
var SizeClasses = []SizeClass{SizeSmall, SizeMedium, SizeLarge}

func ParseSizeClass(s string) (SizeClass, bool) {
	for _, c := range SizeClasses {
		if string(c) == s || c.Lower() == s {
			return c, true
		}
	}
	return "", false
}

func (c SizeClass) Lower() string {
	switch c {
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	case SizeLarge:
		return "large"
	}
	return string(c)
}

// Metadata is the camera and capture information embedded in an original.
// Every field is independently optional; the zero value means nothing was found.
type Metadata struct {
	Make         *string    `json:"make,omitempty"`
	Model        *string    `json:"model,omitempty"`
	Orientation  *int       `json:"orientation,omitempty"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`
	ExposureTime *string    `json:"exposure_time,omitempty"`
	FNumber      *float64   `json:"f_number,omitempty"`
	ISO          *int       `json:"iso,omitempty"`
	FocalLength  *float64   `json:"focal_length,omitempty"`
}

func (m Metadata) Empty() bool {
	return m == Metadata{}
}

type Photo struct {
	ID               uuid.UUID `json:"id" db:"id"`
	OwnerID          uuid.UUID `json:"owner_id" db:"owner_id"`
	StorageKey       string    `json:"storage_key" db:"storage_key"`
	OriginalFilename string    `json:"original_filename" db:"original_filename"`
	MimeType         string    `json:"mime_type" db:"mime_type"`
	FileSize         int64     `json:"file_size" db:"file_size"`
	Width            *int      `json:"width,omitempty" db:"width"`
	Height           *int      `json:"height,omitempty" db:"height"`
	Metadata         *Metadata `json:"metadata,omitempty" db:"exif_data"`
	Status           Status    `json:"status" db:"status"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

type PhotoThumbnail struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PhotoID    uuid.UUID `json:"photo_id" db:"photo_id"`
	Size       SizeClass `json:"size" db:"size"`
	StorageKey string    `json:"storage_key" db:"storage_key"`
	Width      int       `json:"width" db:"width"`
	Height     int       `json:"height" db:"height"`
	FileSize   int64     `json:"file_size" db:"file_size"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewPhoto builds a freshly registered photo: PROCESSING, no derived fields.
func NewPhoto(id, ownerID uuid.UUID, storageKey, filename, mimeType string, size int64) *Photo {
	now := time.Now().UTC()
	return &Photo{
		ID:               id,
		OwnerID:          ownerID,
		StorageKey:       storageKey,
		OriginalFilename: filename,
		MimeType:         mimeType,
		FileSize:         size,
		Status:           StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// MarkReady sets the derived fields and READY together.
func (p *Photo) MarkReady(width, height int, meta Metadata) {
	p.Width = &width
	p.Height = &height
	p.Metadata = &meta
	p.Status = StatusReady
	p.UpdatedAt = time.Now().UTC()
}

// MarkFailed moves the photo to FAILED, leaving the derived fields unset.
func (p *Photo) MarkFailed() {
	p.Width = nil
	p.Height = nil
	p.Metadata = nil
	p.Status = StatusFailed
	p.UpdatedAt = time.Now().UTC()
}

func NewThumbnail(photoID uuid.UUID, size SizeClass, storageKey string, width, height int, fileSize int64) *PhotoThumbnail {
	return &PhotoThumbnail{
		ID:         uuid.New(),
		PhotoID:    photoID,
		Size:       size,
		StorageKey: storageKey,
		Width:      width,
		Height:     height,
		FileSize:   fileSize,
		CreatedAt:  time.Now().UTC(),
	}
}
