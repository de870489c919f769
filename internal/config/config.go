package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Security
	APIKey string `envconfig:"API_KEY" required:"true"`

	// Descriptor store
	DescriptorStore string `envconfig:"DESCRIPTOR_STORE" default:"postgres"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	MinIOEndpoint   string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinIOAccessKey  string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey  string `envconfig:"MINIO_SECRET_KEY"`
	MinIOBucket     string `envconfig:"MINIO_BUCKET" default:"facegate"`
	MinIOUseSSL     bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Face model
	Detector          string        `envconfig:"DETECTOR" default:"deepface"`
	DeepFaceURL       string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel     string        `envconfig:"DEEPFACE_MODEL" default:"Facenet"`
	DeepFaceDetector  string        `envconfig:"DEEPFACE_DETECTOR" default:"opencv"`
	ModelProbeTimeout time.Duration `envconfig:"MODEL_PROBE_TIMEOUT" default:"3s"`

	// Enrollment / verification
	VerificationThreshold float64       `envconfig:"VERIFICATION_THRESHOLD" default:"0.6"`
	PollInterval          time.Duration `envconfig:"POLL_INTERVAL" default:"500ms"`
	SessionTTL            time.Duration `envconfig:"ENROLLMENT_SESSION_TTL" default:"10m"`
	KioskCameraURL        string        `envconfig:"KIOSK_CAMERA_URL"`
	VerifyRateLimit       int           `envconfig:"VERIFY_RATE_LIMIT" default:"30"`
	VerifyRateWindow      time.Duration `envconfig:"VERIFY_RATE_WINDOW" default:"1m"`

	// Attendance events
	NATSURL string `envconfig:"NATS_URL"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DescriptorStore {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DESCRIPTOR_STORE=postgres")
		}
	case "minio":
		if c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when DESCRIPTOR_STORE=minio")
		}
	default:
		return fmt.Errorf("unknown DESCRIPTOR_STORE %q (supported: postgres, minio)", c.DescriptorStore)
	}

	if c.IsProduction() && !domain.IsValidFormat(c.APIKey) {
		return fmt.Errorf("API_KEY must be a generated key in production (see cmd/genkey)")
	}
	if c.VerificationThreshold <= 0 {
		return fmt.Errorf("VERIFICATION_THRESHOLD must be positive, got %v", c.VerificationThreshold)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
