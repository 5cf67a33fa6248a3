package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/service"
)

// IdentityService is the enrollment surface used by the handler.
type IdentityService interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*domain.EnrolledIdentity, error)
	Reenroll(ctx context.Context, identityID string, req service.EnrollRequest) (*domain.EnrolledIdentity, error)
	Get(ctx context.Context, id string) (*domain.EnrolledIdentity, error)
	List(ctx context.Context) ([]*domain.EnrolledIdentity, error)
}

type IdentityHandler struct {
	service IdentityService
	logger  *slog.Logger
}

func NewIdentityHandler(service IdentityService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{service: service, logger: logger}
}

type IdentityResponse struct {
	IdentityID     string   `json:"identity_id"`
	DisplayName    string   `json:"display_name"`
	SampleCount    int      `json:"enrollment_sample_count"`
	ActiveMatchers []string `json:"active_matchers"`
	Degraded       bool     `json:"degraded"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type ListIdentitiesResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

func toIdentityResponse(i *domain.EnrolledIdentity) IdentityResponse {
	return IdentityResponse{
		IdentityID:     i.ID,
		DisplayName:    i.DisplayName,
		SampleCount:    i.SampleCount,
		ActiveMatchers: i.ActiveMatchers,
		Degraded:       i.Degraded,
		CreatedAt:      i.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      i.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Enroll POST /v1/identities - enroll a new identity from uploaded samples
func (h *IdentityHandler) Enroll(c *fiber.Ctx) error {
	displayName := strings.TrimSpace(c.FormValue("display_name"))
	if displayName == "" {
		return domain.ErrValidationFailed.WithError(errors.New("display_name is required"))
	}

	frames, err := extractImages(c, "images")
	if err != nil {
		return err
	}

	identity, err := h.service.Enroll(c.UserContext(), service.EnrollRequest{
		IdentityID:  strings.TrimSpace(c.FormValue("identity_id")),
		DisplayName: displayName,
		Samples:     frames,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toIdentityResponse(identity))
}

// Reenroll PUT /v1/identities/:id - replace the profile of an identity
func (h *IdentityHandler) Reenroll(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return domain.ErrValidationFailed.WithError(errors.New("identity id is required"))
	}

	frames, err := extractImages(c, "images")
	if err != nil {
		return err
	}

	identity, err := h.service.Reenroll(c.UserContext(), id, service.EnrollRequest{
		DisplayName: strings.TrimSpace(c.FormValue("display_name")),
		Samples:     frames,
	})
	if err != nil {
		return err
	}

	return c.JSON(toIdentityResponse(identity))
}

// Get GET /v1/identities/:id
func (h *IdentityHandler) Get(c *fiber.Ctx) error {
	identity, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(toIdentityResponse(identity))
}

// List GET /v1/identities
func (h *IdentityHandler) List(c *fiber.Ctx) error {
	identities, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}

	resp := ListIdentitiesResponse{Identities: make([]IdentityResponse, 0, len(identities)), Total: len(identities)}
	for _, i := range identities {
		resp.Identities = append(resp.Identities, toIdentityResponse(i))
	}
	return c.JSON(resp)
}
