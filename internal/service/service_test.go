package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/detect"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging/imagingtest"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/recognizer"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    repository.IdentityStore
	gallery  *recognizer.Gallery
	ensemble *recognizer.Ensemble
	audit    *audit.MemoryLogger
	enroll   *EnrollmentService
	auth     *AuthenticationService
}

type fixtureOptions struct {
	store      repository.IdentityStore
	embedder   feature.Embedder
	minSamples int
	matchers   []recognizer.Matcher
	noGallery  bool
	imageSize  int
	auth       AuthConfig
}

func defaultMatchers(t *testing.T) []recognizer.Matcher {
	t.Helper()
	ms, err := recognizer.NewMatchers(
		[]string{recognizer.MatcherLBPH, recognizer.MatcherEigenfaces, recognizer.MatcherFisherfaces},
		recognizer.DefaultOptions(),
	)
	require.NoError(t, err)
	return ms
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	if opts.store == nil {
		opts.store = repository.NewMemoryIdentityStore()
	}
	if opts.embedder == nil {
		ex, err := feature.New(feature.DefaultConfig())
		require.NoError(t, err)
		opts.embedder = ex
	}
	if opts.matchers == nil {
		opts.matchers = defaultMatchers(t)
	}
	if opts.imageSize == 0 {
		opts.imageSize = imagingtest.Size
	}

	var gallery *recognizer.Gallery
	if !opts.noGallery {
		gallery = recognizer.NewGallery()
	}
	ensemble := recognizer.NewEnsemble(opts.embedder, gallery, recognizer.DefaultConfig(), testLogger(), opts.matchers...)
	auditLogger := audit.NewMemoryLogger()
	detector := detect.NewContrastDetector(0.05)

	f := &fixture{
		store:    opts.store,
		gallery:  gallery,
		ensemble: ensemble,
		audit:    auditLogger,
	}
	f.enroll = NewEnrollmentService(opts.store, opts.embedder, detector, ensemble, gallery, auditLogger, testLogger(),
		EnrollmentConfig{MinSamples: opts.minSamples, ImageSize: opts.imageSize})
	f.auth = NewAuthenticationService(ensemble, detector, auditLogger, testLogger(), opts.auth)
	return f
}

// scriptedEmbedder returns its vectors in order, one per call.
type scriptedEmbedder struct {
	vectors []feature.Vector
	calls   int
}

func (e *scriptedEmbedder) Extract(_ imaging.NormalizedImage) (feature.Vector, error) {
	v := e.vectors[e.calls%len(e.vectors)]
	e.calls++
	return v, nil
}

// fixedMatcher predicts the same identity and confidence for every probe.
type fixedMatcher struct {
	name       string
	identityID string
	confidence float64
	fitErr     error
}

func (m fixedMatcher) Name() string { return m.name }

func (m fixedMatcher) Fit(_ context.Context, _ []recognizer.Sample) (recognizer.Model, error) {
	if m.fitErr != nil {
		return nil, m.fitErr
	}
	return fixedModel{m}, nil
}

type fixedModel struct{ m fixedMatcher }

func (f fixedModel) Predict(_ context.Context, _ imaging.NormalizedImage) (recognizer.Prediction, error) {
	return recognizer.Prediction{IdentityID: f.m.identityID, Confidence: f.m.confidence}, nil
}

// failingStore fails every write with a storage error.
type failingStore struct {
	repository.IdentityStore
}

func (failingStore) Create(context.Context, *domain.EnrolledIdentity, []imaging.NormalizedImage) error {
	return domain.ErrStorage
}

func (failingStore) Update(context.Context, *domain.EnrolledIdentity, []imaging.NormalizedImage) error {
	return domain.ErrStorage
}

func enrollSubject(t *testing.T, f *fixture, id string, seed int64, n int) *domain.EnrolledIdentity {
	t.Helper()
	identity, err := f.enroll.Enroll(context.Background(), EnrollRequest{
		IdentityID:  id,
		DisplayName: id,
		Samples:     imagingtest.NewSubject(seed).Samples(n),
	})
	require.NoError(t, err)
	return identity
}
