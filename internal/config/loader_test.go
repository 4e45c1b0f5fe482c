package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/logger"
)

func TestLoad_Defaults(t *testing.T) {
	l := NewLoader(logger.NewNoopLogger())

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServicePort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultRequestsPerMinute, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, constants.DefaultMaxTotal, cfg.Memory.MaxTotal)
	assert.True(t, cfg.Sanitizer.DetectHomographs)
	assert.Equal(t, constants.DefaultAuditRetentionDays, cfg.Audit.RetentionDays)
	assert.True(t, cfg.Security.RedactPII)
	assert.Same(t, cfg, l.Current())
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("DOCSHIELD_SERVER_PORT", "9090")
	t.Setenv("DOCSHIELD_SANITIZER_DETECT_HOMOGRAPHS", "false")

	l := NewLoader(logger.NewNoopLogger())
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Sanitizer.DetectHomographs)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DOCSHIELD_SERVER_PORT", "-1")

	l := NewLoader(logger.NewNoopLogger())
	_, err := l.Load()
	assert.Error(t, err)
}
