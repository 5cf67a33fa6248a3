package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Pinger is implemented by the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineStatus exposes the state of the recognizer ensemble.
type EngineStatus interface {
	Matchers() []string
	Ready() []string
	Identities() int
}

type HealthHandler struct {
	db       Pinger
	engine   EngineStatus
	detector string
}

// NewHealthHandler builds the health endpoints. db may be nil when
// identities are kept in memory. detector names the face detector in use so
// operators can tell the cascade from the contrast fallback.
func NewHealthHandler(db Pinger, engine EngineStatus, detector string) *HealthHandler {
	return &HealthHandler{db: db, engine: engine, detector: detector}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type ReadyResponse struct {
	Status     string   `json:"status"`
	Database   string   `json:"database"`
	Matchers   []string `json:"matchers"`
	Trained    []string `json:"trained"`
	Identities int      `json:"identities"`
	Detector   string   `json:"detector,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
	})
}

// Ready reports 503 when the identity store is unreachable.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := ReadyResponse{Status: "ready", Database: "memory", Detector: h.detector}
	if h.engine != nil {
		resp.Matchers = h.engine.Matchers()
		resp.Trained = h.engine.Ready()
		resp.Identities = h.engine.Identities()
	}

	if h.db != nil {
		resp.Database = "ok"
		if err := h.db.Ping(c.UserContext()); err != nil {
			resp.Status = "unavailable"
			resp.Database = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
	}
	return c.JSON(resp)
}
