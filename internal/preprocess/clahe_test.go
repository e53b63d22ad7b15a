package preprocess

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClipHistogramPreservesCount(t *testing.T) {
	var hist [histBins]int
	hist[5] = 100

	clipHistogram(&hist, 10)

	total := 0
	for _, v := range hist {
		total += v
	}
	assert.Equal(t, 100, total)
	// 90 residual counts land on every second bin from 0.
	assert.Equal(t, 1, hist[4])
	assert.Equal(t, 10, hist[5])
	assert.Equal(t, 0, hist[1])
	assert.Equal(t, 0, hist[180])
}

func TestClipHistogramSpreadsBatches(t *testing.T) {
	var hist [histBins]int
	hist[0] = 600

	clipHistogram(&hist, 40)

	total := 0
	for _, v := range hist {
		total += v
	}
	assert.Equal(t, 600, total)
	// 560 excess: two per bin plus 48 residual counts.
	assert.Equal(t, 43, hist[0])
	assert.Equal(t, 2, hist[1])
}

func TestTileLUT(t *testing.T) {
	var hist [histBins]int
	hist[10] = 50
	hist[20] = 50

	lut := tileLUT(&hist, 100)

	assert.Equal(t, uint8(0), lut[9])
	// 50 * (255/100) is just under 127.5 in float64.
	assert.Equal(t, uint8(127), lut[10])
	assert.Equal(t, uint8(127), lut[19])
	assert.Equal(t, uint8(255), lut[20])
	assert.Equal(t, uint8(255), lut[255])
}

func TestBoundsAreContiguous(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 3, 5}, bounds(5, 4))
	assert.Equal(t, []int{0, 12, 25}, bounds(25, 2))
}

func TestContrastKeepsGreyNeutral(t *testing.T) {
	out := DefaultContrast.Apply(solid(40, 30, color.RGBA{R: 128, G: 128, B: 128, A: 255}))

	require.Equal(t, 40, out.Bounds().Dx())
	require.Equal(t, 30, out.Bounds().Dy())
	for i := 0; i < len(out.Pix); i += 4 {
		r, g, b := int(out.Pix[i]), int(out.Pix[i+1]), int(out.Pix[i+2])
		require.InDelta(t, r, g, 1)
		require.InDelta(t, g, b, 1)
		require.Equal(t, uint8(0xff), out.Pix[i+3])
	}
}

func TestContrastHandlesImagesSmallerThanGrid(t *testing.T) {
	out := DefaultContrast.Apply(leaf(3, 2))
	assert.Equal(t, 3, out.Bounds().Dx())
	assert.Equal(t, 2, out.Bounds().Dy())
}

func TestContrastSpreadsTwoToneTile(t *testing.T) {
	// Dark and slightly lighter halves inside a single tile are pulled apart.
	img := solid(16, 16, color.RGBA{R: 60, G: 60, B: 60, A: 255})
	for y := 0; y < 16; y++ {
		for x := 8; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 70, G: 70, B: 70, A: 255})
		}
	}

	out := Contrast{ClipLimit: 40, TileGrid: 1}.Apply(img)

	dark := out.Pix[out.PixOffset(0, 0)]
	light := out.Pix[out.PixOffset(15, 15)]
	assert.Greater(t, int(light)-int(dark), 10)
}
