package recognizer

import (
	"context"
	"math"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// EigenMatcher is the Eigenfaces method. Images are projected on the
// principal components of the training set and matched to the nearest
// training sample. The distance also counts the probe's distance from the
// face space so images unlike any training face are not pulled onto it.
type EigenMatcher struct {
	maxComponents int
	scale         float64
}

func NewEigenMatcher(maxComponents int, scale float64) *EigenMatcher {
	if maxComponents <= 0 {
		maxComponents = DefaultOptions().MaxComponents
	}
	if scale <= 0 {
		scale = DefaultDistanceScale
	}
	return &EigenMatcher{maxComponents: maxComponents, scale: scale}
}

func (m *EigenMatcher) Name() string { return MatcherEigenfaces }

func (m *EigenMatcher) Fit(ctx context.Context, samples []Sample) (Model, error) {
	size, err := checkSamples(samples)
	if err != nil {
		return nil, err
	}

	data := make([][]float64, len(samples))
	for i, s := range samples {
		data[i] = s.Image.Pix()
	}

	basis, err := fitPCA(ctx, data, m.maxComponents)
	if err != nil {
		return nil, err
	}

	model := &eigenModel{basis: basis, size: size, scale: m.scale}
	for i, s := range samples {
		w, _, err := basis.project(data[i])
		if err != nil {
			return nil, err
		}
		model.ids = append(model.ids, s.IdentityID)
		model.weights = append(model.weights, w)
	}
	return model, nil
}

type eigenModel struct {
	basis   *pca
	size    int
	scale   float64
	ids     []string
	weights [][]float64
}

func (m *eigenModel) Predict(_ context.Context, img imaging.NormalizedImage) (Prediction, error) {
	if img.Size() != m.size {
		return Prediction{}, errImageSize(img.Size(), m.size)
	}

	w, residual, err := m.basis.project(img.Pix())
	if err != nil {
		return Prediction{}, err
	}

	best := Prediction{Distance: math.Inf(1)}
	for i, tw := range m.weights {
		d := math.Sqrt(sqDist(w, tw) + residual)
		if d < best.Distance {
			best = Prediction{IdentityID: m.ids[i], Distance: d}
		}
	}
	best.Confidence = distanceConfidence(best.Distance, m.scale)
	return best, nil
}
