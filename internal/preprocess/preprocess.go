// Package preprocess turns uploaded images into model input tensors.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
)

// DefaultMaxPixels bounds decoded image area.
const DefaultMaxPixels = 50_000_000

// Options configures a Preprocessor.
type Options struct {
	Resolution    int
	Layout        Layout
	Interpolation resize.InterpolationFunction
	Contrast      Contrast
	MaxPixels     int
}

// Preprocessor is safe for concurrent use.
type Preprocessor struct {
	opts Options
}

func New(opts Options) (*Preprocessor, error) {
	if opts.Resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %d", opts.Resolution)
	}
	if opts.Layout == "" {
		opts.Layout = LayoutNHWC
	}
	if _, err := ParseLayout(string(opts.Layout)); err != nil {
		return nil, err
	}
	if opts.Contrast.ClipLimit <= 0 || opts.Contrast.TileGrid <= 0 {
		return nil, fmt.Errorf("contrast clip limit and tile grid must be positive")
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Preprocessor{opts: opts}, nil
}

// ParseInterpolation maps a config name to a resize kernel.
func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	switch name {
	case "nearest":
		return resize.NearestNeighbor, nil
	case "bilinear":
		return resize.Bilinear, nil
	case "bicubic":
		return resize.Bicubic, nil
	case "lanczos3":
		return resize.Lanczos3, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", name)
	}
}

func (p *Preprocessor) Resolution() int { return p.opts.Resolution }

func (p *Preprocessor) Layout() Layout { return p.opts.Layout }

// Decode parses JPEG or PNG bytes. Empty, undecodable, zero-area and
// oversized images are InvalidImage errors.
func (p *Preprocessor) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", apperr.InvalidImage("The uploaded file is empty.", nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.InvalidImage("Invalid image format. Supported: JPEG, PNG.", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", apperr.InvalidImage("The image has no pixels.", nil)
	}
	if cfg.Width*cfg.Height > p.opts.MaxPixels {
		return nil, "", apperr.InvalidImage(
			fmt.Sprintf("The image is too large (%dx%d).", cfg.Width, cfg.Height), nil)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.InvalidImage("Invalid image format. Supported: JPEG, PNG.", err)
	}
	return img, format, nil
}

// Preprocess converts img to RGB, optionally enhances local contrast,
// resizes to the configured resolution and scales to [0,1].
func (p *Preprocessor) Preprocess(img image.Image, enhance bool) (*Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, apperr.InvalidImage("The image has no pixels.", nil)
	}

	rgb := toRGB(img)
	if enhance {
		rgb = p.opts.Contrast.Apply(rgb)
	}

	size := uint(p.opts.Resolution)
	resized := asRGBA(resize.Resize(size, size, rgb, p.opts.Interpolation))

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	t := newTensor(p.opts.Layout, height, width)

	for y := 0; y < height; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4:]
			t.set(y, x, 0, float32(px[0])/255.0)
			t.set(y, x, 1, float32(px[1])/255.0)
			t.set(y, x, 2, float32(px[2])/255.0)
		}
	}
	return t, nil
}

// toRGB returns an opaque RGBA copy anchored at the origin. Alpha is
// dropped without blending.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
