package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/camera"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/detect"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/recognizer"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/repository"
)

const DefaultMinSamples = 3

type EnrollmentConfig struct {
	MinSamples int
	ImageSize  int
}

func DefaultEnrollmentConfig() EnrollmentConfig {
	return EnrollmentConfig{MinSamples: DefaultMinSamples, ImageSize: imaging.DefaultSize}
}

// EnrollRequest carries the raw samples of one identity. IdentityID is
// generated when empty.
type EnrollRequest struct {
	IdentityID  string
	DisplayName string
	Samples     []imaging.RawFrame
}

type EnrollmentService struct {
	store    repository.IdentityStore
	embedder feature.Embedder
	detector detect.Detector
	ensemble *recognizer.Ensemble
	gallery  *recognizer.Gallery
	audit    audit.Logger
	logger   *slog.Logger
	cfg      EnrollmentConfig

	// mu serializes every write to the store, gallery and ensemble.
	mu sync.Mutex
}

func NewEnrollmentService(
	store repository.IdentityStore,
	embedder feature.Embedder,
	detector detect.Detector,
	ensemble *recognizer.Ensemble,
	gallery *recognizer.Gallery,
	auditLogger audit.Logger,
	logger *slog.Logger,
	cfg EnrollmentConfig,
) *EnrollmentService {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = imaging.DefaultSize
	}
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &EnrollmentService{
		store:    store,
		embedder: embedder,
		detector: detector,
		ensemble: ensemble,
		gallery:  gallery,
		audit:    auditLogger,
		logger:   logger.With("component", "enrollment"),
		cfg:      cfg,
	}
}

// Enroll registers a new identity.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*domain.EnrolledIdentity, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("display_name is required"))
	}
	id := strings.TrimSpace(req.IdentityID)
	if id == "" {
		id = uuid.NewString()
	}
	return s.enroll(ctx, id, strings.TrimSpace(req.DisplayName), req.Samples, false)
}

// Reenroll replaces the profile of an existing identity. The previous
// profile keeps serving matches until the new one is committed.
func (s *EnrollmentService) Reenroll(ctx context.Context, identityID string, req EnrollRequest) (*domain.EnrolledIdentity, error) {
	existing, err := s.store.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = existing.DisplayName
	}
	return s.enroll(ctx, identityID, name, req.Samples, true)
}

// EnrollFrames captures count frames from session, appends them to the
// request samples and enrolls the result.
func (s *EnrollmentService) EnrollFrames(ctx context.Context, session *camera.Session, req EnrollRequest, count int) (*domain.EnrolledIdentity, error) {
	if count <= 0 {
		count = s.cfg.MinSamples
	}
	frames := append([]imaging.RawFrame(nil), req.Samples...)
	for i := 0; i < count; i++ {
		frame, err := session.Capture(ctx)
		if err != nil {
			return nil, fmt.Errorf("capture enrollment sample %d: %w", i, err)
		}
		frames = append(frames, frame)
	}
	req.Samples = frames
	return s.Enroll(ctx, req)
}

func (s *EnrollmentService) enroll(ctx context.Context, id, displayName string, frames []imaging.RawFrame, update bool) (*domain.EnrolledIdentity, error) {
	images, vectors, rejected, err := s.prepare(ctx, frames)
	if err != nil {
		return nil, err
	}
	if len(images) < s.cfg.MinSamples {
		s.logger.InfoContext(ctx, "enrollment rejected",
			slog.String("identity_id", id),
			slog.Int("accepted", len(images)),
			slog.Int("required", s.cfg.MinSamples),
		)
		return nil, &domain.TooFewSamplesError{Accepted: len(images), Required: s.cfg.MinSamples, Rejected: rejected}
	}

	profile, err := feature.Mean(vectors...)
	if err != nil {
		return nil, fmt.Errorf("identity %s: build profile: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	samples := make([]recognizer.Sample, len(images))
	for i, img := range images {
		samples[i] = recognizer.Sample{IdentityID: id, Image: img}
	}

	plan, err := s.ensemble.Stage(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("identity %s: train matchers: %w", id, err)
	}

	identity := &domain.EnrolledIdentity{
		ID:             id,
		DisplayName:    displayName,
		ProfileVector:  profile,
		SampleCount:    len(images),
		ActiveMatchers: append([]string{domain.MatcherFeature}, plan.Report.Active...),
		Degraded:       plan.Report.Degraded(),
	}

	if update {
		err = s.store.Update(ctx, identity, images)
	} else {
		err = s.store.Create(ctx, identity, images)
	}
	if err != nil {
		return nil, err
	}

	s.gallery.Put(id, profile)
	if err := s.ensemble.Commit(plan); err != nil {
		// Someone trained the ensemble outside this service; fold our
		// samples into whatever is current.
		if _, err := s.ensemble.Train(ctx, samples); err != nil {
			s.logger.ErrorContext(ctx, "retrain after stale plan failed", slog.String("identity_id", id), slog.Any("error", err))
		}
	}

	if identity.Degraded {
		s.logger.WarnContext(ctx, "identity enrolled in degraded mode",
			slog.String("identity_id", id),
			slog.Any("failed_matchers", plan.Report.Failed),
		)
	}
	s.logger.InfoContext(ctx, "identity enrolled",
		slog.String("identity_id", id),
		slog.Int("samples", len(images)),
		slog.Int("rejected", len(rejected)),
		slog.Bool("update", update),
	)
	_ = s.audit.Log(ctx, audit.EnrollmentCommitted(id, len(images), identity.Degraded))

	return identity, nil
}

// prepare validates, normalizes and embeds every frame. Frames that are
// unreadable, synthetic or without a detectable face are rejected.
func (s *EnrollmentService) prepare(ctx context.Context, frames []imaging.RawFrame) ([]imaging.NormalizedImage, [][]float64, []domain.SampleRejection, error) {
	var (
		images   []imaging.NormalizedImage
		vectors  [][]float64
		rejected []domain.SampleRejection
	)
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}

		reason, err := s.screen(ctx, frame)
		if err != nil {
			return nil, nil, nil, err
		}
		if reason != "" {
			rejected = append(rejected, domain.SampleRejection{Index: i, Reason: reason})
			continue
		}

		img, err := imaging.Normalize(frame, s.cfg.ImageSize)
		if err != nil {
			rejected = append(rejected, domain.SampleRejection{Index: i, Reason: err.Error()})
			continue
		}
		vec, err := s.embedder.Extract(img)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sample %d: extract features: %w", i, err)
		}
		images = append(images, img)
		vectors = append(vectors, vec)
	}
	return images, vectors, rejected, nil
}

// screen returns a rejection reason, or "" when the frame is usable.
func (s *EnrollmentService) screen(ctx context.Context, frame imaging.RawFrame) (string, error) {
	if err := frame.Validate(); err != nil {
		return "invalid frame: " + err.Error(), nil
	}
	if frame.Synthetic {
		return "synthetic placeholder frame", nil
	}
	res, err := s.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "face detection failed: " + err.Error(), nil
	}
	if !res.Found() {
		if res.Reason != "" {
			return "no face detected: " + res.Reason, nil
		}
		return "no face detected", nil
	}
	return "", nil
}

// Rehydrate rebuilds the gallery and retrains the ensemble from the store.
// It runs once at startup and returns the number of identities loaded.
//
// Profiles are recomputed from the stored samples with the current
// extractor, so a changed weight seed or layer layout never leaves vectors
// from two extractors in the gallery. Refreshed profiles are written back.
func (s *EnrollmentService) Rehydrate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identities, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("rehydrate: list identities: %w", err)
	}
	stored, err := s.store.ListSamples(ctx)
	if err != nil {
		return 0, fmt.Errorf("rehydrate: list samples: %w", err)
	}

	profiles := make(map[string]feature.Vector, len(identities))
	var (
		samples   []recognizer.Sample
		refreshed int
	)
	for _, identity := range identities {
		images := stored[identity.ID]
		if len(images) == 0 {
			s.logger.WarnContext(ctx, "identity has no stored samples, skipped", slog.String("identity_id", identity.ID))
			continue
		}

		profile, err := s.reprofile(identity.ID, images)
		if err != nil {
			return 0, fmt.Errorf("rehydrate: %w", err)
		}
		if !feature.ApproxEqual(profile, identity.ProfileVector, profileTolerance) {
			identity.ProfileVector = profile
			if err := s.store.Update(ctx, identity, images); err != nil {
				return 0, fmt.Errorf("rehydrate: identity %s: store refreshed profile: %w", identity.ID, err)
			}
			refreshed++
		}

		profiles[identity.ID] = profile
		for _, img := range images {
			samples = append(samples, recognizer.Sample{IdentityID: identity.ID, Image: img})
		}
	}
	s.gallery.Replace(profiles)

	if refreshed > 0 {
		s.logger.WarnContext(ctx, "stored profiles did not match the current extractor and were recomputed",
			slog.Int("refreshed", refreshed),
		)
	}

	if len(samples) > 0 {
		report, err := s.ensemble.Train(ctx, samples)
		if err != nil {
			return 0, fmt.Errorf("rehydrate: train matchers: %w", err)
		}
		s.logger.InfoContext(ctx, "ensemble rehydrated",
			slog.Int("identities", len(profiles)),
			slog.Int("samples", len(samples)),
			slog.Any("active", report.Active),
		)
	}
	return len(profiles), nil
}

// profileTolerance absorbs the float32 round trip through the vector column.
const profileTolerance = 1e-4

// reprofile extracts every stored sample of an identity and averages the
// vectors. Samples normalized at another size mean IMAGE_SIZE changed and
// the stored samples can no longer be used.
func (s *EnrollmentService) reprofile(id string, images []imaging.NormalizedImage) (feature.Vector, error) {
	vectors := make([][]float64, 0, len(images))
	for i, img := range images {
		if img.Size() != s.cfg.ImageSize {
			return nil, fmt.Errorf("identity %s: sample %d was normalized at %dpx, configured image size is %dpx",
				id, i, img.Size(), s.cfg.ImageSize)
		}
		vec, err := s.embedder.Extract(img)
		if err != nil {
			return nil, fmt.Errorf("identity %s: sample %d: extract features: %w", id, i, err)
		}
		vectors = append(vectors, vec)
	}
	profile, err := feature.Mean(vectors...)
	if err != nil {
		return nil, fmt.Errorf("identity %s: build profile: %w", id, err)
	}
	return profile, nil
}

func (s *EnrollmentService) Get(ctx context.Context, id string) (*domain.EnrolledIdentity, error) {
	return s.store.GetByID(ctx, id)
}

func (s *EnrollmentService) List(ctx context.Context) ([]*domain.EnrolledIdentity, error) {
	return s.store.List(ctx)
}
