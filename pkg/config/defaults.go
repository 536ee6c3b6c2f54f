package config

import (
	"strings"
	"time"

	"github.com/wongsyrone/truenas-scale-middleware/pkg/directoryservices/runtime"
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
	cfg.Database.ApplyDefaults()
	cfg.API.ApplyDefaults()
	applyDirectoryServicesDefaults(&cfg.DirectoryServices)
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

// applyDirectoryServicesDefaults sets host integration defaults.
func applyDirectoryServicesDefaults(cfg *DirectoryServicesConfig) {
	if cfg.NetPath == "" {
		cfg.NetPath = "/usr/bin/net"
	}
	if cfg.SystemKeytab == "" {
		cfg.SystemKeytab = "/etc/krb5.keytab"
	}
	if cfg.CredentialCache == "" {
		cfg.CredentialCache = "/var/run/middleware/krb5cc_0"
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "/var/log/truenas-middleware"
	}
	if cfg.SPNTimeout == 0 {
		cfg.SPNTimeout = runtime.DefaultSPNTimeout
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
