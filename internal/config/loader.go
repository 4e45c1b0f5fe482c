package config

import (
	"context"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/logger"
)

// Loader reads the configuration and republishes the sanitizer section when
// the file changes on disk, so Unicode hardening can be tuned without a
// restart. Resource ceilings deliberately do not hot-reload.
type Loader struct {
	v   *viper.Viper
	log logger.Logger

	mu          sync.RWMutex
	current     *Config
	onSanitizer []func(Config)
}

// NewLoader configures defaults, file lookup, and the environment overlay.
func NewLoader(log logger.Logger) *Loader {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", constants.DefaultServicePort)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.flood_rps", constants.DefaultFloodRPS)
	v.SetDefault("server.flood_burst", constants.DefaultFloodBurst)

	v.SetDefault("rate_limit.requests_per_minute", constants.DefaultRequestsPerMinute)
	v.SetDefault("rate_limit.max_concurrent", constants.DefaultMaxConcurrent)
	v.SetDefault("rate_limit.cooldown_seconds", constants.DefaultCooldownSeconds)

	v.SetDefault("memory.max_per_document", constants.DefaultMaxPerDocument)
	v.SetDefault("memory.max_total", constants.DefaultMaxTotal)
	v.SetDefault("memory.max_batch_size", constants.DefaultMaxBatchSize)

	v.SetDefault("sanitizer.remove_bidi", true)
	v.SetDefault("sanitizer.remove_zero_width", true)
	v.SetDefault("sanitizer.normalize_unicode", true)
	v.SetDefault("sanitizer.detect_homographs", true)

	v.SetDefault("audit.log_dir", "/var/lib/docshield/audit")
	v.SetDefault("audit.max_file_size", constants.DefaultAuditMaxFileSize)
	v.SetDefault("audit.retention_days", constants.DefaultAuditRetentionDays)
	v.SetDefault("audit.buffer_size", constants.DefaultAuditBufferSize)

	v.SetDefault("security.allowed_roots", []string{"/var/lib/docshield/templates"})
	v.SetDefault("security.verifier_cache_ttl", 300)
	v.SetDefault("security.redact_pii", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "docshield")
	v.SetDefault("tracing.sampling_rate", 0.1)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/docshield/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCSHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log}
}

// Load reads and validates the configuration. A missing config file is fine;
// defaults and environment variables carry the service.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnSanitizerChange registers a callback invoked with the new configuration
// whenever the file changes and still validates.
func (l *Loader) OnSanitizerChange(fn func(Config)) {
	l.mu.Lock()
	l.onSanitizer = append(l.onSanitizer, fn)
	l.mu.Unlock()
}

// Watch starts hot reload. Invalid edits are logged and ignored; the previous
// configuration stays in force.
func (l *Loader) Watch(ctx context.Context) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.unmarshal()
		if err != nil {
			l.log.Warn(ctx, "ignoring invalid config change", logger.Fields{
				"file":  e.Name,
				"error": err.Error(),
			})
			return
		}

		l.mu.Lock()
		l.current = cfg
		callbacks := make([]func(Config), len(l.onSanitizer))
		copy(callbacks, l.onSanitizer)
		l.mu.Unlock()

		l.log.Info(ctx, "configuration reloaded", logger.Fields{"file": e.Name})
		for _, fn := range callbacks {
			fn(*cfg)
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
