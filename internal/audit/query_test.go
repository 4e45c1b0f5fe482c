package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavnit/docshield/pkg/constants"
)

func TestQuery_Filters(t *testing.T) {
	l, fake := newTestLogger(t, Config{})

	require.NoError(t, l.Info(constants.ActionRequestValidated, "ok", nil))
	fake.Advance(time.Hour)
	require.NoError(t, l.LogRateLimitViolation("client-a", "throttled"))
	fake.Advance(time.Hour)
	require.NoError(t, l.Security(constants.ActionSecurityViolation, "blocked", nil))

	t.Run("no filter returns everything in timestamp order", func(t *testing.T) {
		entries, err := l.Query(Filter{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))
		assert.True(t, entries[1].Timestamp.Before(entries[2].Timestamp))
	})

	t.Run("by action", func(t *testing.T) {
		entries, err := l.Query(Filter{Action: constants.ActionRateLimitViolation})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "throttled", entries[0].Message)
	})

	t.Run("by level", func(t *testing.T) {
		entries, err := l.Query(Filter{Level: constants.AuditLevelSecurity})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "blocked", entries[0].Message)
	})

	t.Run("by client", func(t *testing.T) {
		entries, err := l.Query(Filter{ClientID: "client-a"})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("by time range", func(t *testing.T) {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		entries, err := l.Query(Filter{
			Since: base.Add(30 * time.Minute),
			Until: base.Add(90 * time.Minute),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, constants.ActionRateLimitViolation, entries[0].Action)
	})
}

func TestQuery_SpansArchives(t *testing.T) {
	// Every flush rotates, so each entry lands in its own archive.
	l, fake := newTestLogger(t, Config{MaxFileSize: 1, BufferSize: 1})

	require.NoError(t, l.Info(constants.ActionRequestValidated, "first", nil))
	fake.Advance(time.Second)
	require.NoError(t, l.Info(constants.ActionRequestValidated, "second", nil))

	entries, err := l.Query(Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestQuery_SkipsMalformedLines(t *testing.T) {
	l, fake := newTestLogger(t, Config{})

	require.NoError(t, l.Info(constants.ActionRequestValidated, "good", nil))
	require.NoError(t, l.Flush())

	path := filepath.Join(l.cfg.LogDir, constants.AuditActiveFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{truncated json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fake.Advance(time.Second)
	require.NoError(t, l.Info(constants.ActionRequestValidated, "after corruption", nil))

	entries, err := l.Query(Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "good", entries[0].Message)
	assert.Equal(t, "after corruption", entries[1].Message)
}
