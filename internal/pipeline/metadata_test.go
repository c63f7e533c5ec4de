package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exifJPEG splices an APP1 segment carrying Make and Orientation into a
// valid JPEG.
func exifJPEG(t *testing.T, cameraMake string, orientation uint16) []byte {
	t.Helper()
	value := append([]byte(cameraMake), 0)

	le := binary.LittleEndian
	var tiff bytes.Buffer
	tiff.WriteString("II")
	_ = binary.Write(&tiff, le, uint16(42))
	_ = binary.Write(&tiff, le, uint32(8))
	_ = binary.Write(&tiff, le, uint16(2))
	// Make, ASCII, stored after the IFD
	_ = binary.Write(&tiff, le, uint16(0x010F))
	_ = binary.Write(&tiff, le, uint16(2))
	_ = binary.Write(&tiff, le, uint32(len(value)))
	_ = binary.Write(&tiff, le, uint32(8+2+2*12+4))
	// Orientation, SHORT, inline
	_ = binary.Write(&tiff, le, uint16(0x0112))
	_ = binary.Write(&tiff, le, uint16(3))
	_ = binary.Write(&tiff, le, uint32(1))
	_ = binary.Write(&tiff, le, orientation)
	_ = binary.Write(&tiff, le, uint16(0))
	_ = binary.Write(&tiff, le, uint32(0))
	tiff.Write(value)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpegBytes(t, 40, 20)[2:])
	return out.Bytes()
}

func TestExtractMetadata(t *testing.T) {
	meta := ExtractMetadata(exifJPEG(t, "Canon", 6))
	require.NotNil(t, meta.Make)
	assert.Equal(t, "Canon", *meta.Make)
	require.NotNil(t, meta.Orientation)
	assert.Equal(t, 6, *meta.Orientation)
	assert.Nil(t, meta.Model)
	assert.Nil(t, meta.CapturedAt)
}

func TestExtractMetadataToleratesMissingOrBroken(t *testing.T) {
	assert.True(t, ExtractMetadata(pngBytes(t, 4, 4)).Empty())
	assert.True(t, ExtractMetadata(jpegBytes(t, 4, 4)).Empty())
	assert.True(t, ExtractMetadata([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00}).Empty())
	assert.True(t, ExtractMetadata(nil).Empty())
}

func TestDeriveStoresMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.pipeline.Register(ctx, uuid.New(), "cam.jpg", "image/jpeg", exifJPEG(t, "Canon", 6))
	require.NoError(t, err)
	require.NoError(t, env.worker.Derive(ctx, id))

	photo, err := env.dir.GetPhoto(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, photo.Metadata)
	require.NotNil(t, photo.Metadata.Make)
	assert.Equal(t, "Canon", *photo.Metadata.Make)
	assert.Equal(t, 40, *photo.Width)
}

func TestFormatExposure(t *testing.T) {
	assert.Equal(t, "1/125", formatExposure(1, 125))
	assert.Equal(t, "1/250", formatExposure(2, 500))
	assert.Equal(t, "2", formatExposure(2, 1))
	assert.Equal(t, "2.5", formatExposure(5, 2))
	assert.Equal(t, "3/7", formatExposure(3, 7))
}
