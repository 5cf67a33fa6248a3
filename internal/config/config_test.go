package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads explicit values",
			envVars: map[string]string{
				"PORT":                  "8080",
				"ENV":                   "production",
				"DATABASE_URL":          "postgres://localhost/test",
				"PIGO_CASCADE_PATH":     "/etc/faceauth/facefinder",
				"RECOGNITION_THRESHOLD": "0.9",
				"ENABLED_MATCHERS":      "lbph,fisherfaces",
				"CAPTURE_BACKOFF":       "250ms",
			},
			check: func(c *Config) bool {
				return c.Port == 8080 &&
					c.Environment == "production" &&
					c.UsesDatabase() &&
					c.RecognitionThreshold == 0.9 &&
					len(c.EnabledMatchers) == 2 &&
					c.CaptureBackoff == 250*time.Millisecond
			},
		},
		{
			name:    "uses defaults when optional vars missing",
			envVars: map[string]string{},
			check: func(c *Config) bool {
				return c.Port == 3000 &&
					c.Environment == "development" &&
					!c.UsesDatabase() &&
					c.RecognitionThreshold == 0.85 &&
					c.FastAcceptThreshold == 0.95 &&
					c.MinEnrollmentSamples == 3 &&
					c.FeatureDimension == 128 &&
					c.ImageSize == 64 &&
					c.WeightSeed == 42 &&
					c.LBPHDistanceScale == 25 &&
					c.PigoCascadePath == "" &&
					strings.Join(c.EnabledMatchers, ",") == "lbph,eigenfaces,fisherfaces" &&
					c.CameraAttemptTimeout == 5*time.Second &&
					c.AuthMaxAttempts == 5 &&
					c.AuthTimeout == 15*time.Second
			},
		},
		{
			name:    "fails on unknown matcher",
			envVars: map[string]string{"ENABLED_MATCHERS": "lbph,deepface"},
			wantErr: true,
		},
		{
			name:    "fails on threshold above one",
			envVars: map[string]string{"RECOGNITION_THRESHOLD": "1.5"},
			wantErr: true,
		},
		{
			name:    "fails when fast accept is below threshold",
			envVars: map[string]string{"RECOGNITION_THRESHOLD": "0.9", "FAST_ACCEPT_THRESHOLD": "0.8"},
			wantErr: true,
		},
		{
			name:    "fails with fewer than three enrollment samples",
			envVars: map[string]string{"MIN_ENROLLMENT_SAMPLES": "2"},
			wantErr: true,
		},
		{
			name:    "fails when feature dimension does not fit the vector column",
			envVars: map[string]string{"DATABASE_URL": "postgres://localhost/test", "FEATURE_DIMENSION": "64"},
			wantErr: true,
		},
		{
			name:    "allows another feature dimension in memory",
			envVars: map[string]string{"FEATURE_DIMENSION": "64"},
			check:   func(c *Config) bool { return c.FeatureDimension == 64 },
		},
		{
			name:    "requires a face cascade outside development",
			envVars: map[string]string{"ENV": "staging"},
			wantErr: true,
		},
		{
			name:    "fails on malformed duration",
			envVars: map[string]string{"AUTH_TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed, got: %+v", cfg)
			}
		})
	}
}

func TestConfig_Mappings(t *testing.T) {
	os.Clearenv()
	t.Setenv("CAMERA_INDEX", "2")
	t.Setenv("AUTH_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if got := cfg.CameraConfig(); got.Index != 2 || got.ScanLimit != 4 || got.CaptureRetries != 3 {
		t.Errorf("CameraConfig() = %+v", got)
	}
	if got := cfg.FeatureConfig(); got.InputSize != 64 || got.Dimension != 128 || got.Seed != 42 {
		t.Errorf("FeatureConfig() = %+v", got)
	}
	if got := cfg.AuthConfig(); got.MaxAttempts != 7 || got.FastAccept != 0.95 {
		t.Errorf("AuthConfig() = %+v", got)
	}
	if got := cfg.EnsembleConfig(); got.Threshold != 0.85 {
		t.Errorf("EnsembleConfig() = %+v", got)
	}
	if got := cfg.EnrollmentConfig(); got.MinSamples != 3 {
		t.Errorf("EnrollmentConfig() = %+v", got)
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}
