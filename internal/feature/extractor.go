// Package feature turns normalized face crops into fixed-length signatures.
//
// The Extractor is a fixed random projection shaped like a small
// feed-forward network. Its weights are drawn once from a seeded source and
// are never updated: there is no loss function and no training step.
// Recognition thresholds are calibrated against exactly this behavior, so
// turning it into a trainable model changes every accept/reject decision.
package feature

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

var ErrInputSize = errors.New("input image size does not match extractor")

// Embedder maps a normalized image to a signature vector.
type Embedder interface {
	Extract(img imaging.NormalizedImage) (Vector, error)
}

var _ Embedder = (*Extractor)(nil)

// Config fixes the extractor geometry. Two extractors are comparable only
// when every field, including Seed, is equal.
type Config struct {
	InputSize int
	Hidden1   int
	Hidden2   int
	Dimension int
	Seed      int64
}

// DefaultConfig returns the reference geometry: 64x64 input, 128-d output.
func DefaultConfig() Config {
	return Config{
		InputSize: imaging.DefaultSize,
		Hidden1:   256,
		Hidden2:   128,
		Dimension: 128,
		Seed:      42,
	}
}

type layer struct {
	in, out int
	weights []float64 // out rows of in columns
	bias    []float64
}

// Extractor is safe for concurrent use; all state is read-only after New.
type Extractor struct {
	cfg    Config
	layers [3]layer
}

func New(cfg Config) (*Extractor, error) {
	if cfg.InputSize <= 0 || cfg.Hidden1 <= 0 || cfg.Hidden2 <= 0 || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("invalid extractor config: %+v", cfg)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	in := cfg.InputSize * cfg.InputSize

	e := &Extractor{cfg: cfg}
	e.layers[0] = xavierLayer(rng, in, cfg.Hidden1)
	e.layers[1] = xavierLayer(rng, cfg.Hidden1, cfg.Hidden2)
	e.layers[2] = xavierLayer(rng, cfg.Hidden2, cfg.Dimension)

	return e, nil
}

// xavierLayer draws weights uniformly from +-sqrt(6/(fan_in+fan_out)).
func xavierLayer(rng *rand.Rand, in, out int) layer {
	limit := math.Sqrt(6.0 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return layer{in: in, out: out, weights: w, bias: make([]float64, out)}
}

func (e *Extractor) Config() Config { return e.cfg }

func (e *Extractor) Dimension() int { return e.cfg.Dimension }

func (e *Extractor) InputSize() int { return e.cfg.InputSize }

// Extract projects a normalized image into a signature with components in
// [-1, 1].
func (e *Extractor) Extract(img imaging.NormalizedImage) (Vector, error) {
	if img.Size() != e.cfg.InputSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, img.Size(), e.cfg.InputSize)
	}

	h1 := e.layers[0].forward(img.Pix(), relu)
	h2 := e.layers[1].forward(h1, relu)
	out := e.layers[2].forward(h2, math.Tanh)

	return Vector(out), nil
}

// ExtractFrame normalizes a raw frame and extracts its signature.
func (e *Extractor) ExtractFrame(f imaging.RawFrame) (Vector, error) {
	img, err := imaging.Normalize(f, e.cfg.InputSize)
	if err != nil {
		return nil, err
	}
	return e.Extract(img)
}

func (l layer) forward(x []float64, act func(float64) float64) []float64 {
	out := make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		row := l.weights[o*l.in : (o+1)*l.in]
		sum := l.bias[o]
		for i, v := range x {
			sum += row[i] * v
		}
		out[o] = act(sum)
	}
	return out
}

func relu(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
