package config

import (
	"strings"
	"time"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible
// defaults. Zero values (0, "", nil) are replaced; explicit values are
// preserved. The session secret deliberately has no default.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyPersistenceDefaults(&cfg.Persistence)
	applySessionsDefaults(&cfg.Sessions)
	applyLimitsDefaults(&cfg.Limits)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets HTTP server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":4000"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		// Slightly above the default max_storage so a full-filesystem write
		// fails on quota, not on transport.
		cfg.MaxBodyBytes = 8 * 1024 * 1024
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.LoginRate == 0 {
		cfg.LoginRate = 5
	}
	if cfg.LoginBurst == 0 {
		cfg.LoginBurst = 10
	}
}

// applyPersistenceDefaults sets snapshot store defaults.
func applyPersistenceDefaults(cfg *PersistenceConfig) {
	if cfg.Type == "" {
		cfg.Type = "dir"
	}

	if cfg.Dir == nil {
		cfg.Dir = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Dir["path"]; !ok {
		cfg.Dir["path"] = "/var/lib/driftfs/snapshots"
	}
}

// applySessionsDefaults sets session credential defaults.
//
// Secret is intentionally left empty: validation rejects a missing secret
// rather than shipping a guessable one.
func applySessionsDefaults(cfg *SessionsConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 1024
	}
}

// applyLimitsDefaults sets default filesystem quotas.
func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = vfs.DefaultMaxFiles
	}
	if cfg.MaxStorage == 0 {
		cfg.MaxStorage = vfs.DefaultMaxStorage
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = vfs.DefaultMaxDepth
	}
	if cfg.MaxPath == 0 {
		cfg.MaxPath = vfs.DefaultMaxPath
	}
}

// applyMetricsDefaults sets scrape server defaults. Metrics stay disabled
// unless explicitly enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// Limits converts the configured quotas into engine limits.
func (cfg *LimitsConfig) Limits() vfs.Limits {
	return vfs.Limits{
		MaxFiles:   cfg.MaxFiles,
		MaxStorage: cfg.MaxStorage,
		MaxDepth:   cfg.MaxDepth,
		MaxPath:    cfg.MaxPath,
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Persistence: PersistenceConfig{
			Dir:    make(map[string]any),
			Badger: make(map[string]any),
			S3:     make(map[string]any),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
