package handler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/camera"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/imaging"
)

// Authenticator is the authentication surface used by the handler.
type Authenticator interface {
	Authenticate(ctx context.Context, session *camera.Session) (*domain.RecognitionResult, error)
	AuthenticateImage(ctx context.Context, frame imaging.RawFrame) (*domain.RecognitionResult, error)
}

// Camera is the capture controller surface used by the handlers.
type Camera interface {
	Acquire(ctx context.Context, index *int) (*camera.Session, error)
	Release(s *camera.Session) error
	Status() camera.Status
}

type AuthHandler struct {
	auth   Authenticator
	camera Camera
	logger *slog.Logger
}

func NewAuthHandler(auth Authenticator, cam Camera, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, camera: cam, logger: logger}
}

type MatcherScoreResponse struct {
	Matcher    string  `json:"matcher"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// AuthenticateResponse never names the best candidate of a rejected probe.
type AuthenticateResponse struct {
	Recognized bool                   `json:"recognized"`
	IdentityID *string                `json:"identity_id"`
	Confidence float64                `json:"confidence"`
	Attempts   int                    `json:"attempts"`
	LatencyMs  int64                  `json:"latency_ms"`
	Breakdown  []MatcherScoreResponse `json:"breakdown"`
}

func toAuthenticateResponse(res *domain.RecognitionResult) AuthenticateResponse {
	resp := AuthenticateResponse{
		Recognized: res.Recognized,
		IdentityID: res.IdentityID,
		Confidence: res.Confidence,
		Attempts:   res.Attempts,
		LatencyMs:  res.LatencyMs,
		Breakdown:  make([]MatcherScoreResponse, 0, len(res.Breakdown)),
	}
	for _, s := range res.Breakdown {
		resp.Breakdown = append(resp.Breakdown, MatcherScoreResponse{Matcher: s.Matcher, Confidence: s.Confidence, Error: s.Err})
	}
	return resp
}

// Authenticate POST /v1/authenticate - match one uploaded image
func (h *AuthHandler) Authenticate(c *fiber.Ctx) error {
	frame, err := extractImage(c, "image")
	if err != nil {
		return err
	}

	res, err := h.auth.AuthenticateImage(c.UserContext(), frame)
	return h.respond(c, res, err)
}

// AuthenticateCamera POST /v1/authenticate/camera - acquire the camera and
// run the capture and match loop
func (h *AuthHandler) AuthenticateCamera(c *fiber.Ctx) error {
	var index *int
	if raw := c.Query("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 {
			return domain.ErrValidationFailed.WithError(errors.New("index must be a non-negative integer"))
		}
		index = &i
	}

	session, err := h.camera.Acquire(c.UserContext(), index)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.camera.Release(session); err != nil {
			h.logger.Warn("camera release failed", slog.Any("error", err))
		}
	}()

	res, err := h.auth.Authenticate(c.UserContext(), session)
	return h.respond(c, res, err)
}

// respond reports a rejected probe as a normal result.
func (h *AuthHandler) respond(c *fiber.Ctx, res *domain.RecognitionResult, err error) error {
	if err != nil && !(errors.Is(err, domain.ErrNoMatch) && res != nil) {
		return err
	}
	return c.JSON(toAuthenticateResponse(res))
}

// CameraStatus GET /v1/camera
func (h *AuthHandler) CameraStatus(c *fiber.Ctx) error {
	return c.JSON(h.camera.Status())
}
