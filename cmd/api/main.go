package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/api"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/camera"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/config"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/database"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/detect"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/recognizer"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/repository"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting FaceAuth",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.Bool("database", cfg.UsesDatabase()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &api.Dependencies{AuthRateLimit: cfg.AuthRateLimit}

	// Identity store
	var store repository.IdentityStore
	if cfg.UsesDatabase() {
		if cfg.AutoMigrate {
			if err := database.MigrateUp(ctx, cfg.DatabaseURL, logger); err != nil {
				return err
			}
		}
		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return err
		}
		defer pool.Close()
		store = repository.NewIdentityRepository(pool)
		deps.DB = pool
	} else {
		logger.Warn("DATABASE_URL not set, identities are kept in memory")
		store = repository.NewMemoryIdentityStore()
	}

	// Recognition engine
	extractor, err := feature.New(cfg.FeatureConfig())
	if err != nil {
		return fmt.Errorf("failed to build feature extractor: %w", err)
	}
	matchers, err := recognizer.NewMatchers(cfg.EnabledMatchers, cfg.MatcherOptions())
	if err != nil {
		return fmt.Errorf("failed to build matchers: %w", err)
	}
	detector, err := newDetector(cfg)
	if err != nil {
		return err
	}

	auditLogger := audit.NewSlogLogger(logger)
	gallery := recognizer.NewGallery()
	ensemble := recognizer.NewEnsemble(extractor, gallery, cfg.EnsembleConfig(), logger, matchers...)

	enrollment := service.NewEnrollmentService(store, extractor, detector, ensemble, gallery, auditLogger, logger, cfg.EnrollmentConfig())
	authentication := service.NewAuthenticationService(ensemble, detector, auditLogger, logger, cfg.AuthConfig())

	loaded, err := enrollment.Rehydrate(ctx)
	if err != nil {
		return err
	}
	logger.Info("engine ready",
		slog.Int("identities", loaded),
		slog.String("detector", detector.Name()),
		slog.Any("matchers", ensemble.Matchers()),
	)

	// Camera
	controller := camera.NewController(camera.NewDefaultBackend(), cfg.CameraConfig(), logger, auditLogger)
	defer func() { _ = controller.Close() }()

	deps.Identities = enrollment
	deps.Auth = authentication
	deps.Camera = controller
	deps.Engine = ensemble
	deps.Detector = detector.Name()

	router := api.NewRouter(logger, deps)
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-shutdownCtx.Done():
		logger.Error("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}

func newDetector(cfg *config.Config) (detect.Detector, error) {
	if cfg.PigoCascadePath == "" {
		slog.Warn("PIGO_CASCADE_PATH not set, falling back to the contrast heuristic; any textured image passes as a face")
		return detect.NewContrastDetector(cfg.FaceMinContrast), nil
	}
	d, err := detect.NewPigoDetectorFromFile(cfg.PigoCascadePath, detect.DefaultPigoParams())
	if err != nil {
		return nil, fmt.Errorf("failed to load face detector: %w", err)
	}
	return d, nil
}
