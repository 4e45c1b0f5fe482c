// Package config assembles the service configuration from file, environment,
// and defaults, and supports hot reload of the sanitizer toggles.
package config

import (
	"fmt"

	"github.com/tavnit/docshield/internal/audit"
	"github.com/tavnit/docshield/internal/memory"
	"github.com/tavnit/docshield/internal/monitoring"
	"github.com/tavnit/docshield/internal/ratelimit"
	"github.com/tavnit/docshield/internal/sanitize"
)

// Config holds the full service configuration.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	RateLimit ratelimit.Config         `mapstructure:"rate_limit"`
	Memory    memory.Config            `mapstructure:"memory"`
	Sanitizer sanitize.Config          `mapstructure:"sanitizer"`
	Audit     audit.Config             `mapstructure:"audit"`
	Security  SecurityConfig           `mapstructure:"security"`
	Log       monitoring.LogConfig     `mapstructure:"log"`
	Tracing   monitoring.TracingConfig `mapstructure:"tracing"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // seconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // seconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
	EnablePprof     bool   `mapstructure:"enable_pprof"`
	FloodRPS        int    `mapstructure:"flood_rps"`
	FloodBurst      int    `mapstructure:"flood_burst"`
}

// SecurityConfig wires the collaborator layers of the pipeline.
type SecurityConfig struct {
	// AllowedRoots are the only directories templates may live under.
	AllowedRoots []string `mapstructure:"allowed_roots"`

	// ManifestPath points at the trusted checksum manifest. Empty disables
	// template verification.
	ManifestPath string `mapstructure:"manifest_path"`

	// VerifierCacheTTL is how long computed digests are reused, in seconds.
	VerifierCacheTTL int `mapstructure:"verifier_cache_ttl"`

	// RedactPII toggles the PII redaction layer.
	RedactPII bool `mapstructure:"redact_pii"`
}

// Validate checks the values no default can repair.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Audit.LogDir == "" {
		return fmt.Errorf("config: audit.log_dir is required")
	}
	if len(c.Security.AllowedRoots) == 0 {
		return fmt.Errorf("config: security.allowed_roots must name at least one directory")
	}
	return nil
}
