package imaging

import (
	"fmt"
	"math"
)

// DefaultSize is the side length of a normalized face crop.
const DefaultSize = 64

// NormalizedImage is a size x size single channel plane standardized to
// zero mean and unit variance. It is immutable: accessors hand out copies.
type NormalizedImage struct {
	size int
	pix  []float64
}

// NewNormalizedImage wraps an already standardized plane, e.g. one loaded
// back from the identity store. The input slice is copied.
func NewNormalizedImage(size int, pix []float64) (NormalizedImage, error) {
	if size <= 0 || len(pix) != size*size {
		return NormalizedImage{}, fmt.Errorf("normalized image: want %d values, got %d", size*size, len(pix))
	}
	return NormalizedImage{size: size, pix: append([]float64(nil), pix...)}, nil
}

func (n NormalizedImage) Size() int { return n.size }

func (n NormalizedImage) Len() int { return len(n.pix) }

func (n NormalizedImage) IsZero() bool { return n.size == 0 }

// At returns the value at column x, row y.
func (n NormalizedImage) At(x, y int) float64 {
	return n.pix[y*n.size+x]
}

// Pix returns a copy of the plane in row-major order.
func (n NormalizedImage) Pix() []float64 {
	return append([]float64(nil), n.pix...)
}

// Equal reports exact equality of two images.
func (n NormalizedImage) Equal(o NormalizedImage) bool {
	if n.size != o.size || len(n.pix) != len(o.pix) {
		return false
	}
	for i := range n.pix {
		if n.pix[i] != o.pix[i] {
			return false
		}
	}
	return true
}

// Normalize runs the fixed preprocessing pipeline: resize to size x size,
// luminance grayscale, per-image z-score. A flat image has a standard
// deviation of zero; 1.0 is used instead so the result is all zeros.
func Normalize(f RawFrame, size int) (NormalizedImage, error) {
	if err := f.Validate(); err != nil {
		return NormalizedImage{}, fmt.Errorf("normalize: %w", err)
	}
	if size <= 0 {
		size = DefaultSize
	}

	// luminance is linear in the channels, so converting before resampling
	// gives the same plane as resampling every channel first
	gray := resizeBilinear(f.Luminance(), f.Width, f.Height, size, size)
	standardize(gray)

	return NormalizedImage{size: size, pix: gray}, nil
}

// Stats returns mean and population standard deviation of a plane.
func Stats(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func standardize(values []float64) {
	mean, std := Stats(values)
	if std == 0 {
		std = 1.0
	}
	for i, v := range values {
		values[i] = (v - mean) / std
	}
}

func resizeBilinear(src []float64, sw, sh, dw, dh int) []float64 {
	dst := make([]float64, dw*dh)
	if sw == dw && sh == dh {
		copy(dst, src)
		return dst
	}

	xScale := float64(sw) / float64(dw)
	yScale := float64(sh) / float64(dh)

	for y := 0; y < dh; y++ {
		sy := clampF((float64(y)+0.5)*yScale-0.5, 0, float64(sh-1))
		y0 := int(sy)
		y1 := min(y0+1, sh-1)
		fy := sy - float64(y0)

		for x := 0; x < dw; x++ {
			sx := clampF((float64(x)+0.5)*xScale-0.5, 0, float64(sw-1))
			x0 := int(sx)
			x1 := min(x0+1, sw-1)
			fx := sx - float64(x0)

			top := src[y0*sw+x0]*(1-fx) + src[y0*sw+x1]*fx
			bottom := src[y1*sw+x0]*(1-fx) + src[y1*sw+x1]*fx
			dst[y*dw+x] = top*(1-fy) + bottom*fy
		}
	}
	return dst
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
