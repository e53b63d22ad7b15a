package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/nfnt/resize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
)

func newPreprocessor(t *testing.T, resolution int, layout Layout) *Preprocessor {
	t.Helper()
	p, err := New(Options{
		Resolution:    resolution,
		Layout:        layout,
		Interpolation: resize.Bicubic,
		Contrast:      DefaultContrast,
	})
	require.NoError(t, err)
	return p
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// leaf draws a green blob with darker spots on a pale background.
func leaf(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 210, G: 205, B: 190, A: 255}
			dx, dy := x-w/2, y-h/2
			if dx*dx+dy*dy < (w*w)/8 {
				c = color.RGBA{R: uint8(40 + x%30), G: uint8(120 + y%50), B: 35, A: 255}
				if (x/7+y/5)%9 == 0 {
					c = color.RGBA{R: 90, G: 60, B: 30, A: 255}
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRedPixelScenario(t *testing.T) {
	p := newPreprocessor(t, 150, LayoutNHWC)

	tensor, err := p.Preprocess(solid(10, 10, color.RGBA{R: 255, A: 255}), false)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 150, 150, 3}, tensor.Shape)
	require.Len(t, tensor.Data, 150*150*3)
	for y := 0; y < 150; y++ {
		for x := 0; x < 150; x++ {
			require.Equal(t, float32(1.0), tensor.At(y, x, 0), "red at %d,%d", x, y)
			require.Equal(t, float32(0.0), tensor.At(y, x, 1), "green at %d,%d", x, y)
			require.Equal(t, float32(0.0), tensor.At(y, x, 2), "blue at %d,%d", x, y)
		}
	}
}

func TestOutputDimsMatchResolution(t *testing.T) {
	p := newPreprocessor(t, 224, LayoutNHWC)
	for _, size := range []image.Point{{1, 1}, {300, 17}, {17, 300}, {224, 224}, {640, 480}} {
		tensor, err := p.Preprocess(leaf(size.X, size.Y), false)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 224, 224, 3}, tensor.Shape, "input %v", size)
		assert.Len(t, tensor.Data, tensor.Size())
	}
}

func TestNCHWLayout(t *testing.T) {
	p := newPreprocessor(t, 32, LayoutNCHW)

	tensor, err := p.Preprocess(solid(8, 8, color.RGBA{B: 255, A: 255}), false)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 32, 32}, tensor.Shape)
	assert.Equal(t, 32, tensor.Height())
	assert.Equal(t, 32, tensor.Width())
	plane := 32 * 32
	assert.Equal(t, float32(0), tensor.Data[0])
	assert.Equal(t, float32(0), tensor.Data[plane])
	assert.Equal(t, float32(1), tensor.Data[2*plane])
}

func TestPreprocessIsDeterministic(t *testing.T) {
	p := newPreprocessor(t, 64, LayoutNHWC)
	img := leaf(97, 71)

	for _, enhance := range []bool{false, true} {
		a, err := p.Preprocess(img, enhance)
		require.NoError(t, err)
		b, err := p.Preprocess(img, enhance)
		require.NoError(t, err)
		assert.Equal(t, a.Data, b.Data, "enhance=%v", enhance)
	}
}

func TestValuesInUnitRange(t *testing.T) {
	p := newPreprocessor(t, 48, LayoutNHWC)
	tensor, err := p.Preprocess(leaf(120, 90), true)
	require.NoError(t, err)
	for _, v := range tensor.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestTransparentPixelsKeepTheirColour(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:], []uint8{0, 255, 0, 0})
	}
	p, err := New(Options{Resolution: 4, Interpolation: resize.NearestNeighbor, Contrast: DefaultContrast})
	require.NoError(t, err)

	tensor, err := p.Preprocess(img, false)
	require.NoError(t, err)
	assert.Equal(t, float32(0), tensor.At(3, 3, 0))
	assert.Equal(t, float32(1), tensor.At(3, 3, 1))
}

func TestPreprocessRejectsEmptyImage(t *testing.T) {
	p := newPreprocessor(t, 16, LayoutNHWC)
	_, err := p.Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 0)), false)
	assert.True(t, errors.Is(err, apperr.ErrInvalidImage))
}

func TestDecode(t *testing.T) {
	p := newPreprocessor(t, 16, LayoutNHWC)

	img, format, err := p.Decode(encodePNG(t, leaf(20, 10)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 20, img.Bounds().Dx())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, leaf(12, 12), nil))
	_, format, err = p.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	p := newPreprocessor(t, 16, LayoutNHWC)

	for name, data := range map[string][]byte{
		"empty":     {},
		"text":      []byte("definitely not a leaf"),
		"truncated": encodePNG(t, leaf(20, 20))[:40],
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := p.Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalidImage))
		})
	}
}

func TestDecodeRejectsOversizedImages(t *testing.T) {
	p, err := New(Options{Resolution: 16, Contrast: DefaultContrast, MaxPixels: 100})
	require.NoError(t, err)

	_, _, err = p.Decode(encodePNG(t, leaf(20, 20)))
	assert.True(t, errors.Is(err, apperr.ErrInvalidImage))
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Resolution: 0, Contrast: DefaultContrast})
	assert.Error(t, err)
	_, err = New(Options{Resolution: 8, Layout: "hwc", Contrast: DefaultContrast})
	assert.Error(t, err)
	_, err = New(Options{Resolution: 8})
	assert.Error(t, err)
}

func TestParseInterpolation(t *testing.T) {
	f, err := ParseInterpolation("lanczos3")
	require.NoError(t, err)
	assert.Equal(t, resize.Lanczos3, f)

	_, err = ParseInterpolation("spline")
	assert.Error(t, err)
}

func TestFromValues(t *testing.T) {
	data := make([]float32, 2*2*3)
	data[5] = 0.5

	tensor, err := FromValues(LayoutNHWC, 2, data)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 2, 3}, tensor.Shape)
	assert.Equal(t, float32(0.5), tensor.At(0, 1, 2))

	_, err = FromValues(LayoutNCHW, 2, data[:4])
	assert.Error(t, err)
}
