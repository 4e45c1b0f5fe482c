package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
)

const mb = int64(1024 * 1024)

func newTestManager() *Manager {
	return New(Config{
		MaxPerDocument: 10 * mb,
		MaxTotal:       25 * mb,
		MaxBatchSize:   4,
	}, nil)
}

func assertCode(t *testing.T, err error, code constants.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	se, ok := errors.AsSecurityError(err)
	require.True(t, ok, "expected *SecurityError, got %T", err)
	assert.Equal(t, code, se.Code)
}

func TestAllocate_PerDocumentLimit(t *testing.T) {
	m := newTestManager()

	_, err := m.Allocate("c", 11*mb)
	assertCode(t, err, constants.ErrCodePerDocumentLimitExceeded)
	assert.Contains(t, err.Error(), "11.00 MB")
	assert.Contains(t, err.Error(), "10.00 MB")

	// A rejected allocation commits nothing.
	assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
	assert.Equal(t, int64(0), m.GetClientStats("c").AllocationCount)
}

func TestAllocate_TotalLimit(t *testing.T) {
	m := newTestManager()

	tok1, err := m.Allocate("a", 10*mb)
	require.NoError(t, err)
	_, err = m.Allocate("a", 10*mb)
	require.NoError(t, err)

	// 20 MB live; another 10 MB would cross the 25 MB total.
	_, err = m.Allocate("b", 10*mb)
	assertCode(t, err, constants.ErrCodeTotalLimitExceeded)
	assert.Contains(t, err.Error(), "5.00 MB available")

	// Releasing frees exactly its size and permits a same-size reallocation.
	m.Release(tok1)
	assert.Equal(t, int64(10*mb), m.GetGlobalStats().GlobalUsage)
	_, err = m.Allocate("b", 10*mb)
	assert.NoError(t, err)
}

func TestAllocate_RejectsNonPositiveSize(t *testing.T) {
	m := New(Config{MaxPerDocument: 50, MaxTotal: 100, MaxBatchSize: 4}, nil)

	_, err := m.Allocate("a", 10)
	require.NoError(t, err)

	t.Run("negative size cannot deflate the global counter", func(t *testing.T) {
		_, err := m.Allocate("attacker", -50)
		assertCode(t, err, constants.ErrCodeInvalidAllocation)

		g := m.GetGlobalStats()
		assert.Equal(t, int64(10), g.GlobalUsage)
		assert.Equal(t, int64(90), g.AvailableBytes)
		assert.Equal(t, int64(0), m.GetClientStats("attacker").AllocationCount)
	})

	t.Run("zero size is rejected", func(t *testing.T) {
		_, err := m.Allocate("a", 0)
		assertCode(t, err, constants.ErrCodeInvalidAllocation)
		assert.Equal(t, int64(10), m.GetGlobalStats().GlobalUsage)
	})
}

func TestAllocateBatch_RejectsNonPositiveArguments(t *testing.T) {
	m := newTestManager()

	t.Run("non-positive count", func(t *testing.T) {
		_, err := m.AllocateBatch("c", 0, mb)
		assertCode(t, err, constants.ErrCodeInvalidAllocation)
		_, err = m.AllocateBatch("c", -2, mb)
		assertCode(t, err, constants.ErrCodeInvalidAllocation)
	})

	t.Run("non-positive member size", func(t *testing.T) {
		_, err := m.AllocateBatch("c", 2, 0)
		assertCode(t, err, constants.ErrCodeInvalidAllocation)
		_, err = m.AllocateBatch("c", 2, -mb)
		assertCode(t, err, constants.ErrCodeInvalidAllocation)
	})

	assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
}

func TestAllocate_TracksPerClientUsage(t *testing.T) {
	m := newTestManager()

	tok, err := m.Allocate("c", 4*mb)
	require.NoError(t, err)
	_, err = m.Allocate("c", 2*mb)
	require.NoError(t, err)

	stats := m.GetClientStats("c")
	assert.Equal(t, int64(6*mb), stats.CurrentUsage)
	assert.Equal(t, int64(6*mb), stats.PeakUsage)
	assert.Equal(t, int64(2), stats.AllocationCount)

	m.Release(tok)
	stats = m.GetClientStats("c")
	assert.Equal(t, int64(2*mb), stats.CurrentUsage)
	// Peak is a high-water mark; lifetime count does not shrink.
	assert.Equal(t, int64(6*mb), stats.PeakUsage)
	assert.Equal(t, int64(2), stats.AllocationCount)
}

func TestRelease_Idempotent(t *testing.T) {
	m := newTestManager()

	tok, err := m.Allocate("c", mb)
	require.NoError(t, err)

	m.Release(tok)
	m.Release(tok)
	m.Release("unknown-token")

	assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
	assert.Equal(t, int64(0), m.GetClientStats("c").CurrentUsage)
}

func TestAllocateBatch_Atomic(t *testing.T) {
	m := newTestManager()

	t.Run("rejects oversized count before committing anything", func(t *testing.T) {
		_, err := m.AllocateBatch("c", 5, mb)
		assertCode(t, err, constants.ErrCodeBatchSizeExceeded)
		assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
	})

	t.Run("a batch over the total commits zero members", func(t *testing.T) {
		// 3 * 9 MB = 27 MB > 25 MB total.
		_, err := m.AllocateBatch("c", 3, 9*mb)
		assertCode(t, err, constants.ErrCodeTotalLimitExceeded)
		assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
		assert.Equal(t, int64(0), m.GetClientStats("c").AllocationCount)
	})

	t.Run("member size over the per-document ceiling is rejected", func(t *testing.T) {
		_, err := m.AllocateBatch("c", 2, 11*mb)
		assertCode(t, err, constants.ErrCodePerDocumentLimitExceeded)
	})

	t.Run("valid batch commits all members", func(t *testing.T) {
		tokens, err := m.AllocateBatch("c", 4, 2*mb)
		require.NoError(t, err)
		require.Len(t, tokens, 4)
		assert.Equal(t, int64(8*mb), m.GetGlobalStats().GlobalUsage)
		assert.Equal(t, int64(4), m.GetClientStats("c").AllocationCount)

		m.ReleaseBatch(tokens)
		assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
	})
}

func TestResetClient(t *testing.T) {
	m := newTestManager()

	_, err := m.Allocate("a", 5*mb)
	require.NoError(t, err)
	tokB, err := m.Allocate("b", 5*mb)
	require.NoError(t, err)

	m.ResetClient("a")

	assert.Equal(t, int64(5*mb), m.GetGlobalStats().GlobalUsage)
	assert.Equal(t, int64(0), m.GetClientStats("a").CurrentUsage)

	// b's token is still live and releasable.
	m.Release(tokB)
	assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
}

func TestForceGC(t *testing.T) {
	m := newTestManager()

	tok, err := m.Allocate("c", 5*mb)
	require.NoError(t, err)

	m.ForceGC()
	assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
	assert.Equal(t, 0, m.GetGlobalStats().LiveAllocations)

	// The orphaned token is now silently unreachable.
	m.Release(tok)
	assert.Equal(t, int64(0), m.GetGlobalStats().GlobalUsage)
}

func TestConcurrentAllocation(t *testing.T) {
	m := New(Config{MaxPerDocument: mb, MaxTotal: 1000 * mb, MaxBatchSize: 10}, nil)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			client := string(rune('a' + id))
			for j := 0; j < 50; j++ {
				if tok, err := m.Allocate(client, mb); err == nil {
					m.Release(tok)
				}
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	g := m.GetGlobalStats()
	assert.Equal(t, int64(0), g.GlobalUsage)
	assert.Equal(t, 0, g.LiveAllocations)
}
