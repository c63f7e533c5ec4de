package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// TargetDimensions scales (width, height) so the larger side equals max,
// preserving the aspect ratio. Square originals map to max x max.
func TargetDimensions(width, height, max int) (int, int) {
	if width <= 0 || height <= 0 || max <= 0 {
		return 0, 0
	}
	var tw, th int
	if width > height {
		tw = max
		th = int(math.Round(float64(height) / float64(width) * float64(max)))
	} else {
		th = max
		tw = int(math.Round(float64(width) / float64(height) * float64(max)))
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}

type Rendition struct {
	Data   []byte
	Width  int
	Height int
}

// Render resizes src for the given max dimension and encodes it as JPEG.
// quality is a fraction in (0,1].
func Render(src image.Image, max int, quality float64) (*Rendition, error) {
	b := src.Bounds()
	tw, th := TargetDimensions(b.Dx(), b.Dy(), max)
	if tw == 0 {
		return nil, fmt.Errorf("cannot render %dx%d image at %d", b.Dx(), b.Dy(), max)
	}

	resized := imaging.Resize(src, tw, th, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality))); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return &Rendition{Data: buf.Bytes(), Width: tw, Height: th}, nil
}

// DecodeImage decodes any registered format (jpeg, png, gif, bmp, tiff, webp).
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
