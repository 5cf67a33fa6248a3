package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/camera"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/detect"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/recognizer"
)

type AuthConfig struct {
	MaxAttempts int
	Timeout     time.Duration
	// FastAccept ends the attempt loop early once reached.
	FastAccept float64
	ImageSize  int
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		MaxAttempts: 5,
		Timeout:     15 * time.Second,
		FastAccept:  0.95,
		ImageSize:   imaging.DefaultSize,
	}
}

// AuthenticationService decides whether a live face belongs to an enrolled
// identity. It has no side effects beyond the audit event.
type AuthenticationService struct {
	ensemble *recognizer.Ensemble
	detector detect.Detector
	audit    audit.Logger
	logger   *slog.Logger
	cfg      AuthConfig
}

func NewAuthenticationService(
	ensemble *recognizer.Ensemble,
	detector detect.Detector,
	auditLogger audit.Logger,
	logger *slog.Logger,
	cfg AuthConfig,
) *AuthenticationService {
	def := DefaultAuthConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FastAccept <= 0 {
		cfg.FastAccept = def.FastAccept
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = def.ImageSize
	}
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &AuthenticationService{
		ensemble: ensemble,
		detector: detector,
		audit:    auditLogger,
		logger:   logger.With("component", "authentication"),
		cfg:      cfg,
	}
}

// Authenticate runs capture and match rounds on session until a probe
// reaches the fast-accept confidence, MaxAttempts rounds are spent or the
// timeout expires. The best round decides the outcome.
//
// ErrNoMatch is returned together with the best result so callers can
// report the candidate and confidence.
func (s *AuthenticationService) Authenticate(ctx context.Context, session *camera.Session) (*domain.RecognitionResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		best     *domain.RecognitionResult
		attempts int
		captured int
	)
	for attempts < s.cfg.MaxAttempts && ctx.Err() == nil {
		attempts++

		frame, err := session.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil && captured > 0 {
				break
			}
			s.logger.WarnContext(ctx, "authentication capture failed", slog.Int("attempt", attempts), slog.Any("error", err))
			s.emit(ctx, nil)
			return nil, domain.ErrAuthDeviceError.WithError(err)
		}
		captured++

		res, found, err := s.probe(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.emit(ctx, nil)
			return nil, err
		}
		if !found {
			continue
		}
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
		if res.Confidence >= s.cfg.FastAccept {
			break
		}
	}

	return s.finish(ctx, best, attempts, start)
}

// AuthenticateImage matches a single uploaded frame.
func (s *AuthenticationService) AuthenticateImage(ctx context.Context, frame imaging.RawFrame) (*domain.RecognitionResult, error) {
	start := time.Now()
	if err := frame.Validate(); err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	res, found, err := s.probe(ctx, frame)
	if err != nil {
		return nil, err
	}
	if !found {
		res = nil
	}
	return s.finish(ctx, res, 1, start)
}

func (s *AuthenticationService) finish(ctx context.Context, best *domain.RecognitionResult, attempts int, start time.Time) (*domain.RecognitionResult, error) {
	if best == nil {
		s.emit(ctx, nil)
		return nil, domain.ErrNoFaceDetected
	}

	best.Attempts = attempts
	best.LatencyMs = time.Since(start).Milliseconds()
	s.emit(ctx, best)

	s.logger.InfoContext(ctx, "authentication decided",
		slog.Bool("recognized", best.Recognized),
		slog.Float64("confidence", best.Confidence),
		slog.String("candidate", best.Candidate),
		slog.Int("attempts", attempts),
		slog.Int64("latency_ms", best.LatencyMs),
	)

	if !best.Recognized {
		return best, domain.ErrNoMatch
	}
	return best, nil
}

// probe reports found=false when the frame has no usable face.
func (s *AuthenticationService) probe(ctx context.Context, frame imaging.RawFrame) (*domain.RecognitionResult, bool, error) {
	if frame.Synthetic {
		return nil, false, nil
	}

	det, err := s.detector.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.logger.DebugContext(ctx, "face detection failed", slog.Any("error", err))
		return nil, false, nil
	}
	if !det.Found() {
		return nil, false, nil
	}

	img, err := imaging.Normalize(frame, s.cfg.ImageSize)
	if err != nil {
		return nil, false, nil
	}

	res, err := s.ensemble.MatchProbe(ctx, img)
	if err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (s *AuthenticationService) emit(ctx context.Context, res *domain.RecognitionResult) {
	event := audit.AuthAttempt("", 0, false)
	if res != nil {
		id := ""
		if res.IdentityID != nil {
			id = *res.IdentityID
		}
		event = audit.AuthAttempt(id, res.Confidence, res.Recognized)
	}
	_ = s.audit.Log(ctx, event)
}
