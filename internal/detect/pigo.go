package detect

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// PigoParams holds the cascade scan parameters.
type PigoParams struct {
	// MinSize and MaxSize are fractions of the shorter frame side.
	MinSizeRatio     float64
	MaxSizeRatio     float64
	ShiftFactor      float64
	ScaleFactor      float64
	QualityThreshold float32
	IoUThreshold     float64
}

func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSizeRatio:     0.2,
		MaxSizeRatio:     1.0,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		QualityThreshold: 5.0,
		IoUThreshold:     0.2,
	}
}

// PigoDetector runs a pixel-intensity-comparison cascade over the luminance plane.
type PigoDetector struct {
	classifier *pigo.Pigo
	params     PigoParams
}

// NewPigoDetectorFromFile loads a cascade such as "facefinder".
func NewPigoDetectorFromFile(path string, params PigoParams) (*PigoDetector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pigo cascade: %w", err)
	}
	return NewPigoDetector(cascade, params)
}

// NewPigoDetector unpacks a cascade. Unpack indexes the packet without
// bounds checks, so a truncated file is reported as an error here.
func NewPigoDetector(cascade []byte, params PigoParams) (d *PigoDetector, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("unpack pigo cascade: malformed cascade: %v", r)
		}
	}()

	p := pigo.NewPigo()
	classifier, err := p.Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack pigo cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier, params: params}, nil
}

func (d *PigoDetector) Name() string { return "pigo" }

func (d *PigoDetector) Detect(_ context.Context, frame imaging.RawFrame) (Result, error) {
	if err := frame.Validate(); err != nil {
		return Result{}, err
	}

	gray := frame.Luminance()
	pixels := make([]uint8, len(gray))
	for i, v := range gray {
		pixels[i] = uint8(v)
	}

	side := min(frame.Width, frame.Height)
	cParams := pigo.CascadeParams{
		MinSize:     max(int(float64(side)*d.params.MinSizeRatio), 8),
		MaxSize:     max(int(float64(side)*d.params.MaxSizeRatio), 8),
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   frame.Height,
			Cols:   frame.Width,
			Dim:    frame.Width,
		},
	}

	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.params.IoUThreshold)

	var res Result
	for _, det := range dets {
		if float64(det.Q) > res.Score {
			res.Score = float64(det.Q)
		}
		if det.Q < d.params.QualityThreshold {
			continue
		}
		x := det.Col - det.Scale/2
		y := det.Row - det.Scale/2
		res.Faces = append(res.Faces, image.Rect(x, y, x+det.Scale, y+det.Scale))
	}

	if !res.Found() {
		res.Reason = "no face located by cascade"
	}
	return res, nil
}
