package preprocess

import "fmt"

// Layout is the memory order of an image tensor.
type Layout string

const (
	// LayoutNHWC is batch, height, width, channel (Keras exports).
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is batch, channel, height, width (PyTorch exports).
	LayoutNCHW Layout = "nchw"
)

// ParseLayout accepts "nhwc" and "nchw".
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(s); l {
	case LayoutNHWC, LayoutNCHW:
		return l, nil
	default:
		return "", fmt.Errorf("unknown tensor layout %q", s)
	}
}

const channels = 3

// Tensor is a single-image batch with values in [0,1].
type Tensor struct {
	Shape  []int64
	Layout Layout
	Data   []float32
}

func newTensor(layout Layout, height, width int) *Tensor {
	shape := []int64{1, int64(height), int64(width), channels}
	if layout == LayoutNCHW {
		shape = []int64{1, channels, int64(height), int64(width)}
	}
	return &Tensor{
		Shape:  shape,
		Layout: layout,
		Data:   make([]float32, channels*height*width),
	}
}

// Height and Width read the spatial dims for the tensor's layout.
func (t *Tensor) Height() int {
	if t.Layout == LayoutNCHW {
		return int(t.Shape[2])
	}
	return int(t.Shape[1])
}

func (t *Tensor) Width() int {
	if t.Layout == LayoutNCHW {
		return int(t.Shape[3])
	}
	return int(t.Shape[2])
}

func (t *Tensor) offset(y, x, c int) int {
	h, w := t.Height(), t.Width()
	if t.Layout == LayoutNCHW {
		return c*h*w + y*w + x
	}
	return (y*w+x)*channels + c
}

// At returns channel c of pixel (x, y).
func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[t.offset(y, x, c)]
}

func (t *Tensor) set(y, x, c int, v float32) {
	t.Data[t.offset(y, x, c)] = v
}

// Size is the number of elements the shape describes.
func (t *Tensor) Size() int {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return int(n)
}

// FromValues wraps a flat array as a square single-image tensor. The
// values are used as given.
func FromValues(layout Layout, resolution int, data []float32) (*Tensor, error) {
	t := newTensor(layout, resolution, resolution)
	if len(data) != len(t.Data) {
		return nil, fmt.Errorf("expected %d values, got %d", len(t.Data), len(data))
	}
	copy(t.Data, data)
	return t, nil
}
