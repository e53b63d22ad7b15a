package preprocess

import (
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const histBins = 256

// Contrast is contrast-limited adaptive histogram equalisation applied to
// the L* channel of CIE L*a*b*, leaving chroma untouched.
type Contrast struct {
	ClipLimit float64
	TileGrid  int
}

// DefaultContrast matches the settings the classifier was trained with.
var DefaultContrast = Contrast{ClipLimit: 2.0, TileGrid: 8}

// Apply returns an enhanced copy of src.
func (c Contrast) Apply(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src
	}

	lum := make([]uint8, w*h)
	chroma := make([][2]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			col := colorful.Color{
				R: float64(src.Pix[i+0]) / 255,
				G: float64(src.Pix[i+1]) / 255,
				B: float64(src.Pix[i+2]) / 255,
			}
			l, a, bb := col.Lab()
			lum[y*w+x] = toByte(l * 255)
			chroma[y*w+x] = [2]float64{a, bb}
		}
	}

	equalised := c.equalise(lum, w, h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for k, l := range equalised {
		col := colorful.Lab(float64(l)/255, chroma[k][0], chroma[k][1]).Clamped()
		r, g, bl := col.RGB255()
		i := k * 4
		dst.Pix[i+0] = r
		dst.Pix[i+1] = g
		dst.Pix[i+2] = bl
		dst.Pix[i+3] = 0xff
	}
	return dst
}

// equalise runs CLAHE over a w*h single-channel plane.
func (c Contrast) equalise(plane []uint8, w, h int) []uint8 {
	tilesX, tilesY := min(c.TileGrid, w), min(c.TileGrid, h)

	xs := bounds(w, tilesX)
	ys := bounds(h, tilesY)

	luts := make([][histBins]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			var hist [histBins]int
			for y := ys[ty]; y < ys[ty+1]; y++ {
				for x := xs[tx]; x < xs[tx+1]; x++ {
					hist[plane[y*w+x]]++
				}
			}
			area := (xs[tx+1] - xs[tx]) * (ys[ty+1] - ys[ty])
			clip := max(int(c.ClipLimit*float64(area)/histBins), 1)
			clipHistogram(&hist, clip)
			luts[ty*tilesX+tx] = tileLUT(&hist, area)
		}
	}

	tileW := float64(w) / float64(tilesX)
	tileH := float64(h) / float64(tilesY)

	out := make([]uint8, len(plane))
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/tileH - 0.5
		y1 := int(math.Floor(fy))
		wy := fy - float64(y1)
		y2 := clampInt(y1+1, 0, tilesY-1)
		y1 = clampInt(y1, 0, tilesY-1)

		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/tileW - 0.5
			x1 := int(math.Floor(fx))
			wx := fx - float64(x1)
			x2 := clampInt(x1+1, 0, tilesX-1)
			x1 = clampInt(x1, 0, tilesX-1)

			v := plane[y*w+x]
			tl := float64(luts[y1*tilesX+x1][v])
			tr := float64(luts[y1*tilesX+x2][v])
			bl := float64(luts[y2*tilesX+x1][v])
			br := float64(luts[y2*tilesX+x2][v])

			top := tl + (tr-tl)*wx
			bottom := bl + (br-bl)*wx
			out[y*w+x] = toByte(top + (bottom-top)*wy)
		}
	}
	return out
}

// bounds splits n into parts contiguous, non-empty ranges.
func bounds(n, parts int) []int {
	b := make([]int, parts+1)
	for i := range b {
		b[i] = i * n / parts
	}
	return b
}

// clipHistogram caps every bin at clip and spreads the excess evenly,
// preserving the total count.
func clipHistogram(hist *[histBins]int, clip int) {
	excess := 0
	for i, v := range hist {
		if v > clip {
			excess += v - clip
			hist[i] = clip
		}
	}

	batch := excess / histBins
	residual := excess - batch*histBins
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(histBins/residual, 1)
		for i := 0; i < histBins && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// tileLUT maps each level through the scaled cumulative histogram.
func tileLUT(hist *[histBins]int, area int) [histBins]uint8 {
	var lut [histBins]uint8
	scale := float64(histBins-1) / float64(area)
	sum := 0
	for i, v := range hist {
		sum += v
		lut[i] = toByte(float64(sum) * scale)
	}
	return lut
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
