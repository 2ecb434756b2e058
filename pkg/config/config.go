package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete DriftFS configuration.
//
// This structure captures all configurable aspects of the DriftFS server
// including:
//   - Logging configuration
//   - HTTP server settings
//   - Snapshot persistence selection and configuration (backend-specific)
//   - Session credential settings
//   - Default filesystem limits
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DRIFTFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Persistence Configuration Pattern:
// Each persistence backend defines its own configuration shape. The Config
// struct contains backend-specific sections (e.g., persistence.badger,
// persistence.s3) and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Persistence specifies the snapshot store type and type-specific
	// configuration
	Persistence PersistenceConfig `mapstructure:"persistence"`

	// Sessions controls session and filesystem-handle credentials
	Sessions SessionsConfig `mapstructure:"sessions"`

	// Limits are the default quotas for filesystems created without
	// explicit overrides
	Limits LimitsConfig `mapstructure:"limits"`

	// Metrics controls the Prometheus scrape endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to (e.g., ":4000")
	Listen string `mapstructure:"listen" validate:"required"`

	// ReadTimeout bounds reading one request
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`

	// WriteTimeout bounds writing one response
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required,gt=0"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MaxBodyBytes caps the size of one request body
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"required,gt=0"`

	// AllowedOrigins lists origins allowed by CORS. "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// LoginRate is the sustained login attempts per second allowed per
	// tenant and client address. Zero disables login throttling.
	LoginRate float64 `mapstructure:"login_rate" validate:"gte=0"`

	// LoginBurst is the login burst capacity per tenant and client address
	LoginBurst int `mapstructure:"login_burst" validate:"gte=0"`
}

// PersistenceConfig specifies snapshot store configuration.
//
// The Type field determines which backend is used. Only the corresponding
// backend-specific configuration section is used.
type PersistenceConfig struct {
	// Type specifies which snapshot store backend to use
	// Valid values: memory, dir, badger, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory dir badger s3"`

	// Dir contains directory-backend configuration
	// Only used when Type = "dir"
	Dir map[string]any `mapstructure:"dir"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// SessionsConfig controls session and filesystem-handle credentials.
type SessionsConfig struct {
	// Secret is the HMAC key signing session and handle credentials.
	// Required; there is no insecure default.
	Secret string `mapstructure:"secret" validate:"required,min=16"`

	// TTL is the lifetime of an issued session credential
	TTL time.Duration `mapstructure:"ttl" validate:"required,gt=0"`

	// MaxSessions caps the number of live sessions per server
	MaxSessions int `mapstructure:"max_sessions" validate:"required,gt=0"`
}

// LimitsConfig are the default filesystem quotas.
type LimitsConfig struct {
	// MaxFiles is the maximum number of files per filesystem
	MaxFiles int `mapstructure:"max_files" validate:"gte=0"`

	// MaxStorage is the maximum total stored bytes per filesystem
	MaxStorage int64 `mapstructure:"max_storage" validate:"gte=0"`

	// MaxDepth is the maximum number of path segments in a file path
	MaxDepth int `mapstructure:"max_depth" validate:"gte=0"`

	// MaxPath is the maximum character length of a file path
	MaxPath int `mapstructure:"max_path" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection and the scrape server on
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port the scrape server listens on
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DRIFTFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DRIFTFS_ prefix and underscores
	// Example: DRIFTFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DRIFTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so env-only settings need
	// an explicit binding per key.
	for _, key := range []string{
		"logging.level", "logging.output",
		"server.listen", "server.read_timeout", "server.write_timeout",
		"server.shutdown_timeout", "server.max_body_bytes",
		"server.login_rate", "server.login_burst",
		"persistence.type",
		"metrics.enabled", "metrics.port",
		"sessions.secret", "sessions.ttl", "sessions.max_sessions",
		"limits.max_files", "limits.max_storage", "limits.max_depth", "limits.max_path",
	} {
		// BindEnv only errors on an empty key name.
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/driftfs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "driftfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "driftfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
