// Package memory tracks outstanding document-generation allocations against
// per-document, aggregate, and batch ceilings.
//
// Allocations are accounting tokens only: no process memory is reserved on
// Allocate and none is freed on Release. The manager bounds what callers are
// *permitted* to consume, which is how the fill engine's buffers are sized.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tavnit/docshield/pkg/clock"
	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
)

// Config holds the accounting ceilings. Zero values fall back to the defaults
// in pkg/constants.
type Config struct {
	// MaxPerDocument is the largest single allocation, in bytes.
	MaxPerDocument int64 `mapstructure:"max_per_document"`

	// MaxTotal is the aggregate ceiling across all clients, in bytes.
	MaxTotal int64 `mapstructure:"max_total"`

	// MaxBatchSize is the largest member count AllocateBatch accepts.
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

func (c Config) withDefaults() Config {
	if c.MaxPerDocument <= 0 {
		c.MaxPerDocument = constants.DefaultMaxPerDocument
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = constants.DefaultMaxTotal
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = constants.DefaultMaxBatchSize
	}
	return c
}

// allocation is one live accounting entry, owned by the manager between
// Allocate and Release. The caller holds only the token.
type allocation struct {
	clientID  string
	size      int64
	createdAt time.Time
}

// clientUsage is per-client accounting. AllocationCount is a lifetime count,
// not a live count; PeakUsage is a high-water mark that only Reset lowers.
type clientUsage struct {
	current int64
	peak    int64
	count   int64
}

// Manager is the allocation accountant. One mutex guards all counters so the
// global total can never be observed torn between clients.
type Manager struct {
	mu          sync.Mutex
	cfg         Config
	clock       clock.Clock
	clients     map[string]*clientUsage
	allocations map[string]*allocation
	globalUsage int64
}

// New creates a Manager with the given ceilings and clock.
func New(cfg Config, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Manager{
		cfg:         cfg.withDefaults(),
		clock:       clk,
		clients:     make(map[string]*clientUsage),
		allocations: make(map[string]*allocation),
	}
}

func (m *Manager) usage(clientID string) *clientUsage {
	u, ok := m.clients[clientID]
	if !ok {
		u = &clientUsage{}
		m.clients[clientID] = u
	}
	return u
}

// commit records one validated allocation. Must be called with the mutex held
// and only after every ceiling check has passed.
func (m *Manager) commit(clientID string, size int64) string {
	token := uuid.NewString()
	m.allocations[token] = &allocation{
		clientID:  clientID,
		size:      size,
		createdAt: m.clock.Now(),
	}
	u := m.usage(clientID)
	u.current += size
	if u.current > u.peak {
		u.peak = u.current
	}
	u.count++
	m.globalUsage += size
	return token
}

// Allocate reserves size bytes of budget for the client and returns the
// capability token that releases it. Size must be positive: a zero or
// negative value reaching commit would deflate globalUsage and let later
// total-limit checks pass against a counter smaller than the live
// reservations. Ceilings are checked in order: the per-document limit first,
// then the aggregate limit. A rejected allocation commits nothing.
func (m *Manager) Allocate(clientID string, size int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size <= 0 {
		return "", errors.ErrInvalidAllocation(
			fmt.Sprintf("allocation size must be positive, got %d", size))
	}
	if size > m.cfg.MaxPerDocument {
		return "", errors.ErrPerDocumentLimit(size, m.cfg.MaxPerDocument)
	}
	if m.globalUsage+size > m.cfg.MaxTotal {
		return "", errors.ErrTotalLimit(size, m.cfg.MaxTotal-m.globalUsage)
	}
	return m.commit(clientID, size), nil
}

// AllocateBatch reserves count allocations of sizeEach bytes as one logical
// reservation: either every member commits or none does, so a batch can never
// straddle the aggregate limit.
func (m *Manager) AllocateBatch(clientID string, count int, sizeEach int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if count <= 0 {
		return nil, errors.ErrInvalidAllocation(
			fmt.Sprintf("batch count must be positive, got %d", count))
	}
	if sizeEach <= 0 {
		return nil, errors.ErrInvalidAllocation(
			fmt.Sprintf("allocation size must be positive, got %d", sizeEach))
	}
	if count > m.cfg.MaxBatchSize {
		return nil, errors.ErrBatchSize(count, m.cfg.MaxBatchSize)
	}
	if sizeEach > m.cfg.MaxPerDocument {
		return nil, errors.ErrPerDocumentLimit(sizeEach, m.cfg.MaxPerDocument)
	}
	total := int64(count) * sizeEach
	if m.globalUsage+total > m.cfg.MaxTotal {
		return nil, errors.ErrTotalLimit(total, m.cfg.MaxTotal-m.globalUsage)
	}

	tokens := make([]string, 0, count)
	for i := 0; i < count; i++ {
		tokens = append(tokens, m.commit(clientID, sizeEach))
	}
	return tokens, nil
}

// Release returns an allocation's budget. Unknown or already released tokens
// are ignored so callers can release unconditionally in deferred cleanup.
func (m *Manager) Release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(token)
}

// ReleaseBatch releases every token in the slice, ignoring unknowns.
func (m *Manager) ReleaseBatch(tokens []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range tokens {
		m.release(token)
	}
}

func (m *Manager) release(token string) {
	a, ok := m.allocations[token]
	if !ok {
		return
	}
	delete(m.allocations, token)
	if u, ok := m.clients[a.clientID]; ok {
		u.current -= a.size
		if u.current < 0 {
			u.current = 0
		}
	}
	m.globalUsage -= a.size
	if m.globalUsage < 0 {
		m.globalUsage = 0
	}
}

// ClientStats is a snapshot of one client's accounting.
type ClientStats struct {
	ClientID        string `json:"client_id"`
	CurrentUsage    int64  `json:"current_usage"`
	PeakUsage       int64  `json:"peak_usage"`
	AllocationCount int64  `json:"allocation_count"`
}

// GetClientStats returns the client's snapshot.
func (m *Manager) GetClientStats(clientID string) ClientStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usage(clientID)
	return ClientStats{
		ClientID:        clientID,
		CurrentUsage:    u.current,
		PeakUsage:       u.peak,
		AllocationCount: u.count,
	}
}

// GlobalStats is the aggregate accounting view.
type GlobalStats struct {
	GlobalUsage     int64 `json:"global_usage"`
	AvailableBytes  int64 `json:"available_bytes"`
	LiveAllocations int   `json:"live_allocations"`
	TrackedClients  int   `json:"tracked_clients"`
}

// GetGlobalStats returns the aggregate view.
func (m *Manager) GetGlobalStats() GlobalStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return GlobalStats{
		GlobalUsage:     m.globalUsage,
		AvailableBytes:  m.cfg.MaxTotal - m.globalUsage,
		LiveAllocations: len(m.allocations),
		TrackedClients:  len(m.clients),
	}
}

// ResetClient drops one client's live allocations and zeroes its counters.
func (m *Manager) ResetClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, a := range m.allocations {
		if a.clientID == clientID {
			delete(m.allocations, token)
			m.globalUsage -= a.size
		}
	}
	if m.globalUsage < 0 {
		m.globalUsage = 0
	}
	delete(m.clients, clientID)
}

// ResetAll zeroes all accounting.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = make(map[string]*clientUsage)
	m.allocations = make(map[string]*allocation)
	m.globalUsage = 0
}

// ForceGC unconditionally zeroes all live accounting. Tokens still held by
// callers become unreachable and their later Release is a no-op; this is an
// ops/test recovery hatch, not a leak detector. Known limitation: nothing
// reclaims a token whose holder crashed without releasing.
func (m *Manager) ForceGC() {
	m.ResetAll()
}
