package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"photobook/internal/models"
)

// ExtractMetadata reads camera and capture fields from the EXIF block.
// It never fails: missing or malformed data yields an empty or partial record.
func ExtractMetadata(data []byte) (meta models.Metadata) {
	defer func() {
		// goexif panics on some truncated inputs
		_ = recover()
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return meta
	}

	meta.Make = exifString(x, exif.Make)
	meta.Model = exifString(x, exif.Model)
	meta.Orientation = exifInt(x, exif.Orientation)
	if t, err := x.DateTime(); err == nil {
		meta.CapturedAt = &t
	}
	if num, den, ok := exifRat(x, exif.ExposureTime); ok {
		s := formatExposure(num, den)
		meta.ExposureTime = &s
	}
	if num, den, ok := exifRat(x, exif.FNumber); ok {
		f := float64(num) / float64(den)
		meta.FNumber = &f
	}
	meta.ISO = exifInt(x, exif.ISOSpeedRatings)
	if num, den, ok := exifRat(x, exif.FocalLength); ok {
		f := float64(num) / float64(den)
		meta.FocalLength = &f
	}
	return meta
}

func exifString(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return nil
	}
	return &s
}

func exifInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &v
}

func exifRat(x *exif.Exif, name exif.FieldName) (int64, int64, bool) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0, 0, false
	}
	return num, den, true
}

// formatExposure renders 1/125 style fractions, or whole seconds.
func formatExposure(num, den int64) string {
	if num%den == 0 {
		return fmt.Sprintf("%d", num/den)
	}
	if num > den {
		return fmt.Sprintf("%.1f", float64(num)/float64(den))
	}
	if num != 1 && den%num == 0 {
		return fmt.Sprintf("1/%d", den/num)
	}
	return fmt.Sprintf("%d/%d", num, den)
}
