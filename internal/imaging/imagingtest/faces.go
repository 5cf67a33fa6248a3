// Package imagingtest builds deterministic synthetic frames for tests.
package imagingtest

import (
	"math/rand"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

const (
	Size  = 64
	block = 4
)

// Subject is a synthetic face: a fixed pattern of flat 4x4 blocks.
type Subject struct {
	blocks []float64
}

// NewSubject derives a subject pattern from seed.
func NewSubject(seed int64) Subject {
	rng := rand.New(rand.NewSource(seed))
	n := (Size / block) * (Size / block)
	blocks := make([]float64, n)
	for i := range blocks {
		blocks[i] = 40 + rng.Float64()*175
	}
	return Subject{blocks: blocks}
}

// Frame renders the subject under a lighting change (gain, offset) with a
// few perturbed pixels chosen by noiseSeed. noiseSeed 0 adds no noise.
func (s Subject) Frame(gain, offset float64, noiseSeed int64) imaging.RawFrame {
	pix := make([]uint8, Size*Size)
	perRow := Size / block
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			v := s.blocks[(y/block)*perRow+x/block]*gain + offset
			pix[y*Size+x] = clamp(v)
		}
	}
	if noiseSeed != 0 {
		rng := rand.New(rand.NewSource(noiseSeed))
		for i := 0; i < 4; i++ {
			p := rng.Intn(len(pix))
			pix[p] = clamp(float64(pix[p]) + float64(rng.Intn(41)-20))
		}
	}
	return imaging.RawFrame{Width: Size, Height: Size, Channels: 1, Pix: pix}
}

// Samples renders n lighting variants of the subject.
func (s Subject) Samples(n int) []imaging.RawFrame {
	out := make([]imaging.RawFrame, n)
	for i := range out {
		gain := 0.9 + 0.05*float64(i%5)
		offset := float64(i%3-1) * 8
		out[i] = s.Frame(gain, offset, int64(i+1))
	}
	return out
}

// Noise returns a frame of independent random pixels.
func Noise(seed int64) imaging.RawFrame {
	rng := rand.New(rand.NewSource(seed))
	pix := make([]uint8, Size*Size)
	for i := range pix {
		pix[i] = uint8(rng.Intn(256))
	}
	return imaging.RawFrame{Width: Size, Height: Size, Channels: 1, Pix: pix}
}

// Blank returns a uniform frame with no facial structure.
func Blank(v uint8) imaging.RawFrame {
	pix := make([]uint8, Size*Size)
	for i := range pix {
		pix[i] = v
	}
	return imaging.RawFrame{Width: Size, Height: Size, Channels: 1, Pix: pix}
}

// Normalized normalizes f at the default size and panics on failure.
func Normalized(f imaging.RawFrame) imaging.NormalizedImage {
	img, err := imaging.Normalize(f, Size)
	if err != nil {
		panic(err)
	}
	return img
}

func clamp(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
