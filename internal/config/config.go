// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrRegistryPathRequired is returned when REGISTRY_PATH is not set.
	ErrRegistryPathRequired = errors.New("config: REGISTRY_PATH is required")
	// ErrInvalidPollAttempts is returned when a poll budget is not positive.
	ErrInvalidPollAttempts = errors.New("config: poll attempts must be positive")
	// ErrInvalidOuterRetries is returned when MAX_OUTER_RETRIES is negative.
	ErrInvalidOuterRetries = errors.New("config: MAX_OUTER_RETRIES must not be negative")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port          int    `env:"PORT, default=8080" json:"port"`
	ServerBaseURL string `env:"SERVER_BASE_URL, default=http://localhost:8080" json:"server_base_url"`
	CORSOrigin    string `env:"CORS_ALLOWED_ORIGIN, default=*" json:"cors_allowed_origin"`

	// Output settings
	OutputDir string `env:"OUTPUT_DIR, default=./generated" json:"output_dir"`

	// Service registry settings
	RegistryPath        string `env:"REGISTRY_PATH, required" json:"registry_path"`
	DefaultImageService string `env:"DEFAULT_IMAGE_SERVICE" json:"default_image_service,omitempty"`
	DefaultVideoService string `env:"DEFAULT_VIDEO_SERVICE" json:"default_video_service,omitempty"`

	// Prompt settings
	PromptDictionaryPath string `env:"PROMPT_DICTIONARY_PATH" json:"prompt_dictionary_path,omitempty"`

	// Orchestration settings
	ImageMaxPollAttempts int `env:"IMAGE_MAX_POLL_ATTEMPTS, default=30" json:"image_max_poll_attempts"`
	VideoMaxPollAttempts int `env:"VIDEO_MAX_POLL_ATTEMPTS, default=120" json:"video_max_poll_attempts"`
	MaxOuterRetries      int `env:"MAX_OUTER_RETRIES, default=2" json:"max_outer_retries"`
	FetchMaxAttempts     int `env:"FETCH_MAX_ATTEMPTS, default=3" json:"fetch_max_attempts"`
	ToolCallTimeoutSec   int `env:"TOOL_CALL_TIMEOUT_SEC, default=120" json:"tool_call_timeout_sec"`

	// Optional S3 mirror settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=generated/" json:"s3_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// ToolCallTimeout returns the per-call timeout for generation tools.
func (c *Config) ToolCallTimeout() time.Duration {
	return time.Duration(c.ToolCallTimeoutSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "REGISTRY_PATH") {
			return nil, ErrRegistryPathRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.RegistryPath == "" {
		return ErrRegistryPathRequired
	}
	if c.ImageMaxPollAttempts <= 0 || c.VideoMaxPollAttempts <= 0 {
		return ErrInvalidPollAttempts
	}
	if c.MaxOuterRetries < 0 {
		return ErrInvalidOuterRetries
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ServerBaseURL: %s, OutputDir: %s, RegistryPath: %s, ImageMaxPollAttempts: %d, VideoMaxPollAttempts: %d, MaxOuterRetries: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ServerBaseURL,
		c.OutputDir,
		c.RegistryPath,
		c.ImageMaxPollAttempts,
		c.VideoMaxPollAttempts,
		c.MaxOuterRetries,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
