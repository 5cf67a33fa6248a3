package recognizer

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

var errSingleClass = domain.ErrInsufficientSamples.WithError(errors.New("fisherfaces needs at least two identities"))

// FisherMatcher is a Fisherfaces variant. After PCA, each component is
// weighted by the inverse of its pooled within-identity variance, which
// stretches the directions that separate identities, and probes are
// matched to the nearest identity mean.
type FisherMatcher struct {
	maxComponents int
	scale         float64
}

func NewFisherMatcher(maxComponents int, scale float64) *FisherMatcher {
	if maxComponents <= 0 {
		maxComponents = DefaultOptions().MaxComponents
	}
	if scale <= 0 {
		scale = DefaultDistanceScale
	}
	return &FisherMatcher{maxComponents: maxComponents, scale: scale}
}

func (m *FisherMatcher) Name() string { return MatcherFisherfaces }

func (m *FisherMatcher) Fit(ctx context.Context, samples []Sample) (Model, error) {
	size, err := checkSamples(samples)
	if err != nil {
		return nil, err
	}

	byClass := map[string][]int{}
	for i, s := range samples {
		byClass[s.IdentityID] = append(byClass[s.IdentityID], i)
	}
	if len(byClass) < 2 {
		return nil, errSingleClass
	}

	data := make([][]float64, len(samples))
	for i, s := range samples {
		data[i] = s.Image.Pix()
	}

	basis, err := fitPCA(ctx, data, m.maxComponents)
	if err != nil {
		return nil, err
	}

	proj := make([][]float64, len(samples))
	for i := range data {
		if proj[i], _, err = basis.project(data[i]); err != nil {
			return nil, err
		}
	}

	k := len(basis.components)
	ids := make([]string, 0, len(byClass))
	for id := range byClass {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	means := make([][]float64, len(ids))
	within := make([]float64, k)
	for c, id := range ids {
		members := byClass[id]
		mean := make([]float64, k)
		for _, i := range members {
			for d := 0; d < k; d++ {
				mean[d] += proj[i][d]
			}
		}
		for d := range mean {
			mean[d] /= float64(len(members))
		}
		for _, i := range members {
			for d := 0; d < k; d++ {
				diff := proj[i][d] - mean[d]
				within[d] += diff * diff
			}
		}
		means[c] = mean
	}

	return &fisherModel{
		basis:   basis,
		size:    size,
		scale:   m.scale,
		ids:     ids,
		means:   means,
		weights: whiteningWeights(within, len(samples)),
	}, nil
}

// whiteningWeights turns pooled within-class scatter into per-component
// weights 1/(var+reg), rescaled to a mean of one so distances stay in
// pixel units.
func whiteningWeights(scatter []float64, n int) []float64 {
	k := len(scatter)
	weights := make([]float64, k)
	if k == 0 {
		return weights
	}

	variance := make([]float64, k)
	avg := 0.0
	for d, s := range scatter {
		variance[d] = s / float64(n)
		avg += variance[d]
	}
	avg /= float64(k)
	reg := 0.1*avg + 1e-6

	sum := 0.0
	for d, v := range variance {
		weights[d] = 1 / (v + reg)
		sum += weights[d]
	}
	for d := range weights {
		weights[d] *= float64(k) / sum
	}
	return weights
}

type fisherModel struct {
	basis   *pca
	size    int
	scale   float64
	ids     []string
	means   [][]float64
	weights []float64
}

func (m *fisherModel) Predict(_ context.Context, img imaging.NormalizedImage) (Prediction, error) {
	if img.Size() != m.size {
		return Prediction{}, errImageSize(img.Size(), m.size)
	}

	w, residual, err := m.basis.project(img.Pix())
	if err != nil {
		return Prediction{}, err
	}

	best := Prediction{Distance: math.Inf(1)}
	for c, mean := range m.means {
		var d2 float64
		for d := range w {
			diff := w[d] - mean[d]
			d2 += m.weights[d] * diff * diff
		}
		dist := math.Sqrt(d2 + residual)
		if dist < best.Distance {
			best = Prediction{IdentityID: m.ids[c], Distance: dist}
		}
	}
	best.Confidence = distanceConfidence(best.Distance, m.scale)
	return best, nil
}
