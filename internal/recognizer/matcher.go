// Package recognizer matches probe images against enrolled identities with
// an ensemble of independent matchers. The feature-vector matcher is the
// always-on baseline; LBPH, Eigenfaces and Fisherfaces are optional and
// are skipped when they cannot be trained.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

const (
	MatcherLBPH        = "lbph"
	MatcherEigenfaces  = "eigenfaces"
	MatcherFisherfaces = "fisherfaces"
)

// DefaultDistanceScale maps a native matcher distance onto [0,1] via
// max(0, 1 - d/scale).
const DefaultDistanceScale = 100.0

// DefaultLBPHDistanceScale is the LBPH scale. Cell histograms carry unit
// mass, so the chi-square distance is bounded by 2 per cell; with the
// default threshold a probe is accepted only below 3.75, well under the
// distance between structurally similar but different faces.
const DefaultLBPHDistanceScale = 25.0

var errNoSamples = domain.ErrInsufficientSamples.WithError(errors.New("no training samples"))

// Sample is one normalized training image of an identity.
type Sample struct {
	IdentityID string
	Image      imaging.NormalizedImage
}

// Prediction is the nearest identity according to one matcher.
type Prediction struct {
	IdentityID string
	Distance   float64
	Confidence float64
}

// Model is an immutable trained matcher state.
type Model interface {
	Predict(ctx context.Context, img imaging.NormalizedImage) (Prediction, error)
}

// Matcher fits a model from the full training set. Fit must not retain or
// mutate the samples slice.
type Matcher interface {
	Name() string
	Fit(ctx context.Context, samples []Sample) (Model, error)
}

// Options tunes the optional matchers.
type Options struct {
	// DistanceScale applies to Eigenfaces and Fisherfaces.
	DistanceScale     float64
	LBPHDistanceScale float64
	MaxComponents     int
	GridSize          int
}

func DefaultOptions() Options {
	return Options{
		DistanceScale:     DefaultDistanceScale,
		LBPHDistanceScale: DefaultLBPHDistanceScale,
		MaxComponents:     50,
		GridSize:          8,
	}
}

// NewMatchers builds the named matchers in priority order LBPH, Eigenfaces,
// Fisherfaces regardless of the order names are given in.
func NewMatchers(names []string, opts Options) ([]Matcher, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		switch n {
		case MatcherLBPH, MatcherEigenfaces, MatcherFisherfaces:
			want[n] = true
		default:
			return nil, fmt.Errorf("unknown matcher %q", n)
		}
	}

	var out []Matcher
	if want[MatcherLBPH] {
		out = append(out, NewLBPHMatcher(opts.GridSize, opts.LBPHDistanceScale))
	}
	if want[MatcherEigenfaces] {
		out = append(out, NewEigenMatcher(opts.MaxComponents, opts.DistanceScale))
	}
	if want[MatcherFisherfaces] {
		out = append(out, NewFisherMatcher(opts.MaxComponents, opts.DistanceScale))
	}
	return out, nil
}

func distanceConfidence(d, scale float64) float64 {
	if scale <= 0 {
		scale = DefaultDistanceScale
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return math.Max(0, 1-d/scale)
}

func checkSamples(samples []Sample) (size int, err error) {
	if len(samples) == 0 {
		return 0, errNoSamples
	}
	size = samples[0].Image.Size()
	for i, s := range samples {
		if s.Image.IsZero() || s.Image.Size() != size {
			return 0, fmt.Errorf("sample %d: image size %d, want %d", i, s.Image.Size(), size)
		}
	}
	return size, nil
}
