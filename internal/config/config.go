package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/camera"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/feature"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/recognizer"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/repository"
	"github.com/saturnino-fabrica-de-software/faceauth/internal/service"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database. Empty keeps identities in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Recognition
	RecognitionThreshold float64  `envconfig:"RECOGNITION_THRESHOLD" default:"0.85"`
	FastAcceptThreshold  float64  `envconfig:"FAST_ACCEPT_THRESHOLD" default:"0.95"`
	MinEnrollmentSamples int      `envconfig:"MIN_ENROLLMENT_SAMPLES" default:"3"`
	EnabledMatchers      []string `envconfig:"ENABLED_MATCHERS" default:"lbph,eigenfaces,fisherfaces"`
	DistanceScale        float64  `envconfig:"MATCHER_DISTANCE_SCALE" default:"100"`
	LBPHDistanceScale    float64  `envconfig:"LBPH_DISTANCE_SCALE" default:"25"`
	MaxComponents        int      `envconfig:"MATCHER_MAX_COMPONENTS" default:"50"`

	// Feature extractor
	ImageSize        int   `envconfig:"IMAGE_SIZE" default:"64"`
	Hidden1          int   `envconfig:"HIDDEN_LAYER_1" default:"256"`
	Hidden2          int   `envconfig:"HIDDEN_LAYER_2" default:"128"`
	FeatureDimension int   `envconfig:"FEATURE_DIMENSION" default:"128"`
	WeightSeed       int64 `envconfig:"WEIGHT_SEED" default:"42"`

	// Face detection. The contrast fallback is only allowed in development.
	PigoCascadePath string  `envconfig:"PIGO_CASCADE_PATH"`
	FaceMinContrast float64 `envconfig:"FACE_MIN_CONTRAST" default:"0.05"`

	// Camera
	CameraIndex          int           `envconfig:"CAMERA_INDEX" default:"0"`
	CameraWidth          int           `envconfig:"CAMERA_WIDTH" default:"640"`
	CameraHeight         int           `envconfig:"CAMERA_HEIGHT" default:"480"`
	CameraFPS            int           `envconfig:"CAMERA_FPS" default:"30"`
	CameraScanLimit      int           `envconfig:"CAMERA_SCAN_LIMIT" default:"4"`
	CameraAttemptTimeout time.Duration `envconfig:"CAMERA_ATTEMPT_TIMEOUT" default:"5s"`
	CaptureRetries       int           `envconfig:"CAPTURE_RETRIES" default:"3"`
	CaptureBackoff       time.Duration `envconfig:"CAPTURE_BACKOFF" default:"100ms"`

	// Authentication
	AuthMaxAttempts int           `envconfig:"AUTH_MAX_ATTEMPTS" default:"5"`
	AuthTimeout     time.Duration `envconfig:"AUTH_TIMEOUT" default:"15s"`
	AuthRateLimit   int           `envconfig:"AUTH_RATE_LIMIT" default:"30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.RecognitionThreshold <= 0 || c.RecognitionThreshold > 1 {
		errs = append(errs, fmt.Errorf("RECOGNITION_THRESHOLD must be in (0,1]: %v", c.RecognitionThreshold))
	}
	if c.FastAcceptThreshold < c.RecognitionThreshold || c.FastAcceptThreshold > 1 {
		errs = append(errs, fmt.Errorf("FAST_ACCEPT_THRESHOLD must be in [RECOGNITION_THRESHOLD,1]: %v", c.FastAcceptThreshold))
	}
	if c.MinEnrollmentSamples < service.DefaultMinSamples {
		errs = append(errs, fmt.Errorf("MIN_ENROLLMENT_SAMPLES must be at least %d: %d", service.DefaultMinSamples, c.MinEnrollmentSamples))
	}
	if c.ImageSize < 8 {
		errs = append(errs, fmt.Errorf("IMAGE_SIZE too small: %d", c.ImageSize))
	}
	if c.Hidden1 <= 0 || c.Hidden2 <= 0 || c.FeatureDimension <= 0 {
		errs = append(errs, errors.New("extractor layer sizes must be positive"))
	}
	if c.UsesDatabase() && c.FeatureDimension != repository.ProfileDimension {
		errs = append(errs, fmt.Errorf("FEATURE_DIMENSION must be %d when DATABASE_URL is set: %d", repository.ProfileDimension, c.FeatureDimension))
	}
	if c.DistanceScale <= 0 || c.LBPHDistanceScale <= 0 {
		errs = append(errs, errors.New("MATCHER_DISTANCE_SCALE and LBPH_DISTANCE_SCALE must be positive"))
	}
	if c.PigoCascadePath == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("PIGO_CASCADE_PATH is required outside development"))
	}
	if _, err := recognizer.NewMatchers(c.EnabledMatchers, c.MatcherOptions()); err != nil {
		errs = append(errs, fmt.Errorf("ENABLED_MATCHERS: %w", err))
	}
	if c.CameraScanLimit < 0 || c.CaptureRetries < 1 {
		errs = append(errs, errors.New("CAMERA_SCAN_LIMIT must be >= 0 and CAPTURE_RETRIES >= 1"))
	}
	if c.CameraAttemptTimeout <= 0 || c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.AuthMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("AUTH_MAX_ATTEMPTS must be positive: %d", c.AuthMaxAttempts))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesDatabase reports whether identities are persisted in Postgres.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) FeatureConfig() feature.Config {
	return feature.Config{
		InputSize: c.ImageSize,
		Hidden1:   c.Hidden1,
		Hidden2:   c.Hidden2,
		Dimension: c.FeatureDimension,
		Seed:      c.WeightSeed,
	}
}

func (c *Config) MatcherOptions() recognizer.Options {
	return recognizer.Options{
		DistanceScale:     c.DistanceScale,
		LBPHDistanceScale: c.LBPHDistanceScale,
		MaxComponents:     c.MaxComponents,
		GridSize:          recognizer.DefaultOptions().GridSize,
	}
}

func (c *Config) EnsembleConfig() recognizer.Config {
	return recognizer.Config{
		Threshold: c.RecognitionThreshold,
		Policy:    recognizer.DefaultFusionPolicy(),
	}
}

func (c *Config) CameraConfig() camera.Config {
	return camera.Config{
		Index:          c.CameraIndex,
		Width:          c.CameraWidth,
		Height:         c.CameraHeight,
		FPS:            c.CameraFPS,
		ScanLimit:      c.CameraScanLimit,
		AttemptTimeout: c.CameraAttemptTimeout,
		CaptureRetries: c.CaptureRetries,
		CaptureBackoff: c.CaptureBackoff,
	}
}

func (c *Config) EnrollmentConfig() service.EnrollmentConfig {
	return service.EnrollmentConfig{
		MinSamples: c.MinEnrollmentSamples,
		ImageSize:  c.ImageSize,
	}
}

func (c *Config) AuthConfig() service.AuthConfig {
	return service.AuthConfig{
		MaxAttempts: c.AuthMaxAttempts,
		Timeout:     c.AuthTimeout,
		FastAccept:  c.FastAcceptThreshold,
		ImageSize:   c.ImageSize,
	}
}
