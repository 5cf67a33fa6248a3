package recognizer

import (
	"context"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

const lbpBins = 256

// LBPHMatcher compares local binary pattern histograms. Each pixel is
// coded against its 8 radius-1 neighbours, codes are histogrammed per
// cell of a grid x grid layout and histograms are compared with the
// chi-square distance.
type LBPHMatcher struct {
	grid  int
	scale float64
}

func NewLBPHMatcher(grid int, scale float64) *LBPHMatcher {
	if grid <= 0 {
		grid = 8
	}
	if scale <= 0 {
		scale = DefaultLBPHDistanceScale
	}
	return &LBPHMatcher{grid: grid, scale: scale}
}

func (m *LBPHMatcher) Name() string { return MatcherLBPH }

func (m *LBPHMatcher) Fit(ctx context.Context, samples []Sample) (Model, error) {
	size, err := checkSamples(samples)
	if err != nil {
		return nil, err
	}

	model := &lbphModel{grid: m.grid, scale: m.scale, size: size}
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model.ids = append(model.ids, s.IdentityID)
		model.hists = append(model.hists, lbpHistogram(s.Image, m.grid))
	}
	return model, nil
}

type lbphModel struct {
	grid  int
	scale float64
	size  int
	ids   []string
	hists [][]float64
}

func (m *lbphModel) Predict(_ context.Context, img imaging.NormalizedImage) (Prediction, error) {
	if img.Size() != m.size {
		return Prediction{}, errImageSize(img.Size(), m.size)
	}

	probe := lbpHistogram(img, m.grid)
	best := Prediction{Distance: -1}
	for i, h := range m.hists {
		d := chiSquare(probe, h)
		if best.Distance < 0 || d < best.Distance {
			best = Prediction{IdentityID: m.ids[i], Distance: d}
		}
	}
	best.Confidence = distanceConfidence(best.Distance, m.scale)
	return best, nil
}

var lbpOffsets = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}}

// lbpHistogram returns grid*grid concatenated histograms, each normalized
// to sum to one.
func lbpHistogram(img imaging.NormalizedImage, grid int) []float64 {
	size := img.Size()
	inner := size - 2
	hist := make([]float64, grid*grid*lbpBins)
	counts := make([]float64, grid*grid)
	if inner <= 0 {
		return hist
	}

	for y := 1; y <= inner; y++ {
		gy := (y - 1) * grid / inner
		for x := 1; x <= inner; x++ {
			gx := (x - 1) * grid / inner
			c := img.At(x, y)
			code := 0
			for bit, o := range lbpOffsets {
				if img.At(x+o[0], y+o[1]) >= c {
					code |= 1 << bit
				}
			}
			cell := gy*grid + gx
			hist[cell*lbpBins+code]++
			counts[cell]++
		}
	}

	for cell, n := range counts {
		if n == 0 {
			continue
		}
		for b := 0; b < lbpBins; b++ {
			hist[cell*lbpBins+b] /= n
		}
	}
	return hist
}

func chiSquare(a, b []float64) float64 {
	var d float64
	for i := range a {
		s := a[i] + b[i]
		if s == 0 {
			continue
		}
		diff := a[i] - b[i]
		d += diff * diff / s
	}
	return d
}
