package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDimensions(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape", 200, 100, 50, 50, 25},
		{"square", 100, 100, 50, 50, 50},
		{"portrait", 100, 200, 50, 25, 50},
		{"rounding", 300, 200, 50, 50, 33},
		{"upscale", 10, 5, 300, 300, 150},
		{"sliver clamps to one", 1000, 3, 50, 50, 1},
		{"invalid", 0, 10, 50, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := TargetDimensions(tt.w, tt.h, tt.max)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestTargetDimensionsPreservesAspect(t *testing.T) {
	for w := 1; w <= 120; w += 7 {
		for h := 1; h <= 120; h += 5 {
			for _, max := range []int{16, 50, 300} {
				tw, th := TargetDimensions(w, h, max)
				if w >= h {
					require.Equal(t, max, tw)
					want := float64(h) / float64(w) * float64(max)
					assert.LessOrEqual(t, math.Abs(float64(th)-want), 1.0, "%dx%d@%d", w, h, max)
				} else {
					require.Equal(t, max, th)
					want := float64(w) / float64(h) * float64(max)
					assert.LessOrEqual(t, math.Abs(float64(tw)-want), 1.0, "%dx%d@%d", w, h, max)
				}
			}
		}
	}
}

func TestRender(t *testing.T) {
	r, err := Render(testImage(200, 100), 50, 0.85)
	require.NoError(t, err)
	assert.Equal(t, 50, r.Width)
	assert.Equal(t, 25, r.Height)

	img, err := DecodeImage(r.Data)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("nope"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestJPEGQuality(t *testing.T) {
	assert.Equal(t, 85, jpegQuality(0.85))
	assert.Equal(t, 100, jpegQuality(1))
	assert.Equal(t, 1, jpegQuality(0.001))
	assert.Equal(t, 100, jpegQuality(3))
}
