package recognizer

import (
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
)

// FusionPolicy weighs cosine similarity against a Euclidean closeness term
// when scoring a probe vector against a profile.
type FusionPolicy struct {
	CosineWeight   float64
	DistanceWeight float64
}

func DefaultFusionPolicy() FusionPolicy {
	return FusionPolicy{CosineWeight: 0.7, DistanceWeight: 0.3}
}

// Score returns the clamped similarity and the raw Euclidean distance.
func (p FusionPolicy) Score(probe, profile []float64) (confidence, distance float64, err error) {
	cos, err := feature.Cosine(probe, profile)
	if err != nil {
		return 0, 0, err
	}
	distance, err = feature.Euclidean(probe, profile)
	if err != nil {
		return 0, 0, err
	}
	return feature.Clamp01(p.CosineWeight*cos + p.DistanceWeight/(1+distance)), distance, nil
}

// FeatureMatcher compares extractor output against the gallery profiles.
// It needs no training and is always available.
type FeatureMatcher struct {
	gallery *Gallery
	policy  FusionPolicy
}

func NewFeatureMatcher(gallery *Gallery, policy FusionPolicy) *FeatureMatcher {
	return &FeatureMatcher{gallery: gallery, policy: policy}
}

func (m *FeatureMatcher) Name() string { return domain.MatcherFeature }

// Match returns the best scoring profile. An empty gallery yields a zero
// prediction.
func (m *FeatureMatcher) Match(probe feature.Vector) (Prediction, error) {
	var best Prediction
	found := false
	for id, profile := range m.gallery.Snapshot() {
		conf, dist, err := m.policy.Score(probe, profile)
		if err != nil {
			return Prediction{}, err
		}
		if !found || conf > best.Confidence || (conf == best.Confidence && id < best.IdentityID) {
			best = Prediction{IdentityID: id, Distance: dist, Confidence: conf}
			found = true
		}
	}
	return best, nil
}
