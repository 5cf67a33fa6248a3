package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/api/middleware"
)

type Dependencies struct {
	Identities handler.IdentityService
	Auth       handler.Authenticator
	Camera     handler.Camera
	Engine     handler.EngineStatus
	// DB is nil when identities are kept in memory.
	DB handler.Pinger
	// Detector names the face detector reported by /ready.
	Detector string
	// AuthRateLimit is the number of authentication requests allowed per
	// client IP per minute.
	AuthRateLimit int
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FaceAuth",
		BodyLimit:    64 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var (
		db       handler.Pinger
		engine   handler.EngineStatus
		detector string
	)
	if r.deps != nil {
		db, engine, detector = r.deps.DB, r.deps.Engine, r.deps.Detector
	}
	healthHandler := handler.NewHealthHandler(db, engine, detector)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")

	identityHandler := handler.NewIdentityHandler(r.deps.Identities, r.logger)
	v1.Post("/identities", identityHandler.Enroll)
	v1.Get("/identities", identityHandler.List)
	v1.Get("/identities/:id", identityHandler.Get)
	v1.Put("/identities/:id", identityHandler.Reenroll)

	authHandler := handler.NewAuthHandler(r.deps.Auth, r.deps.Camera, r.logger)
	v1.Get("/camera", authHandler.CameraStatus)

	r.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Max:    r.deps.AuthRateLimit,
		Window: time.Minute,
	})
	authGroup := v1.Group("/authenticate", r.rateLimiter.Handler())
	authGroup.Post("/", authHandler.Authenticate)
	authGroup.Post("/camera", authHandler.AuthenticateCamera)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
	return r.app.Shutdown()
}
