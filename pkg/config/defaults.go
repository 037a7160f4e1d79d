package config

import (
	"strings"
	"time"

	"github.com/speexx/guetzli-service/internal/bytesize"
	"github.com/speexx/guetzli-service/pkg/api"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	applyUploadDefaults(&cfg.Upload)
	applyTransformDefaults(&cfg.Transform)
	applyJanitorDefaults(&cfg.Janitor)
	applyAPIDefaults(&cfg.API)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyUploadDefaults sets upload admission defaults.
func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 8 * bytesize.MiB
	}
}

// applyTransformDefaults sets subprocess defaults.
func applyTransformDefaults(cfg *TransformConfig) {
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 2
	}
	if cfg.MemLimitMB == 0 {
		cfg.MemLimitMB = 6000
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.WaitInterval == 0 {
		cfg.WaitInterval = 5 * time.Second
	}
	if cfg.MaxWaits == 0 {
		cfg.MaxWaits = 180
	}
}

// applyJanitorDefaults sets retention defaults.
func applyJanitorDefaults(cfg *JanitorConfig) {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Minute
	}
}

// applyAPIDefaults sets API server defaults.
// The API is always enabled; without it nothing can be uploaded.
func applyAPIDefaults(cfg *api.APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
