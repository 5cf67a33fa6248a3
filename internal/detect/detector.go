// Package detect decides whether a frame contains a locatable face before
// it is allowed into enrollment or matching.
package detect

import (
	"context"
	"image"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// Result describes the faces found in a frame.
type Result struct {
	Faces []image.Rectangle
	// Score is the best detection quality reported by the detector.
	Score  float64
	Reason string
}

// Found reports whether at least one face was located.
func (r Result) Found() bool {
	return len(r.Faces) > 0
}

// Detector locates faces in a raw frame.
type Detector interface {
	Name() string
	Detect(ctx context.Context, frame imaging.RawFrame) (Result, error)
}

// ContrastDetector accepts any frame whose luminance has enough spread to
// carry facial structure. It is the fallback when no cascade is configured
// and rejects blank, covered or saturated frames.
type ContrastDetector struct {
	// MinContrast is the minimum luminance standard deviation, as a fraction of full scale.
	MinContrast float64
}

func NewContrastDetector(minContrast float64) *ContrastDetector {
	if minContrast <= 0 {
		minContrast = 0.05
	}
	return &ContrastDetector{MinContrast: minContrast}
}

func (d *ContrastDetector) Name() string { return "contrast" }

func (d *ContrastDetector) Detect(_ context.Context, frame imaging.RawFrame) (Result, error) {
	if err := frame.Validate(); err != nil {
		return Result{}, err
	}

	_, std := imaging.Stats(frame.Luminance())
	contrast := std / 255.0
	if contrast < d.MinContrast {
		return Result{Score: contrast, Reason: "insufficient contrast"}, nil
	}

	return Result{
		Faces: []image.Rectangle{image.Rect(0, 0, frame.Width, frame.Height)},
		Score: contrast,
	}, nil
}

var (
	_ Detector = (*ContrastDetector)(nil)
	_ Detector = (*PigoDetector)(nil)
)
