// Package ratelimit implements per-client throughput control for the security
// pipeline: a continuously refilling token bucket, a bounded concurrency
// counter, and an error-triggered cooldown window. All three mechanisms are
// keyed independently per client; one client's exhaustion never affects
// another's budget.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tavnit/docshield/pkg/clock"
	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
)

// Config holds the limiter knobs. Zero values fall back to the defaults in
// pkg/constants.
type Config struct {
	// RequestsPerMinute is the bucket capacity; the refill rate is
	// RequestsPerMinute/60 tokens per second.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	// MaxConcurrent is the in-flight request ceiling per client.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// CooldownSeconds is the penalty window applied by RecordError.
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = constants.DefaultRequestsPerMinute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = constants.DefaultMaxConcurrent
	}
	if c.CooldownSeconds <= 0 {
		c.CooldownSeconds = constants.DefaultCooldownSeconds
	}
	return c
}

// clientState is the per-client bucket. Created lazily on first reference,
// never destroyed (Reset clears it in place).
type clientState struct {
	tokens        float64
	lastRefill    time.Time
	concurrent    int
	cooldownUntil time.Time

	totalChecks   int64
	totalRejected int64
}

// Limiter is the per-client rate limiter. All state is guarded by one mutex;
// no operation blocks while holding it.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	clock   clock.Clock
	clients map[string]*clientState
	slots   map[string]string // concurrency token -> client id
}

// New creates a Limiter with the given configuration and clock.
func New(cfg Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Limiter{
		cfg:     cfg.withDefaults(),
		clock:   clk,
		clients: make(map[string]*clientState),
		slots:   make(map[string]string),
	}
}

// state returns the client's bucket, creating a full one on first reference.
// Must be called with the mutex held.
func (l *Limiter) state(clientID string) *clientState {
	st, ok := l.clients[clientID]
	if !ok {
		st = &clientState{
			tokens:     float64(l.cfg.RequestsPerMinute),
			lastRefill: l.clock.Now(),
		}
		l.clients[clientID] = st
	}
	return st
}

// refill credits tokens for the wall-clock time elapsed since the last check.
// Fractional elapsed time yields fractional credit. Must be called with the
// mutex held.
func (l *Limiter) refill(st *clientState, now time.Time) {
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := float64(l.cfg.RequestsPerMinute) / 60.0
	st.tokens += elapsed * rate
	if st.tokens > float64(l.cfg.RequestsPerMinute) {
		st.tokens = float64(l.cfg.RequestsPerMinute)
	}
	st.lastRefill = now
}

// inCooldown reports whether the client is inside its cooldown window and how
// many whole seconds remain. Must be called with the mutex held.
func (l *Limiter) inCooldown(st *clientState, now time.Time) (bool, int) {
	if st.cooldownUntil.IsZero() || !now.Before(st.cooldownUntil) {
		return false, 0
	}
	remaining := int(st.cooldownUntil.Sub(now).Seconds())
	if remaining < 1 {
		remaining = 1
	}
	return true, remaining
}

// CheckLimit consumes one token from the client's bucket. It fails with
// IN_COOLDOWN during a cooldown window regardless of token state, and with
// RATE_LIMIT_EXCEEDED when the bucket holds less than one token.
func (l *Limiter) CheckLimit(clientID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	st := l.state(clientID)
	st.totalChecks++

	if cooling, remaining := l.inCooldown(st, now); cooling {
		st.totalRejected++
		return errors.ErrInCooldown(clientID, remaining)
	}

	l.refill(st, now)
	if st.tokens < 1 {
		st.totalRejected++
		return errors.ErrRateLimitExceeded(clientID, l.cfg.RequestsPerMinute)
	}
	st.tokens--
	return nil
}

// Acquire claims a concurrency slot for the client and returns an opaque token
// that must be presented to Release. It fails with CONCURRENT_LIMIT_EXCEEDED
// once MaxConcurrent slots are held, and with IN_COOLDOWN during a cooldown.
func (l *Limiter) Acquire(clientID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	st := l.state(clientID)

	if cooling, remaining := l.inCooldown(st, now); cooling {
		return "", errors.ErrInCooldown(clientID, remaining)
	}
	if st.concurrent >= l.cfg.MaxConcurrent {
		return "", errors.ErrConcurrentLimitExceeded(clientID, l.cfg.MaxConcurrent)
	}

	token := uuid.NewString()
	st.concurrent++
	l.slots[token] = clientID
	return token, nil
}

// Release returns a concurrency slot. It never fails: unknown or already
// released tokens are ignored so callers can release unconditionally in
// deferred cleanup paths.
func (l *Limiter) Release(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clientID, ok := l.slots[token]
	if !ok {
		return
	}
	delete(l.slots, token)
	if st, ok := l.clients[clientID]; ok && st.concurrent > 0 {
		st.concurrent--
	}
}

// RecordError starts the client's cooldown window. Every CheckLimit and
// Acquire fails with IN_COOLDOWN until CooldownSeconds of wall-clock time
// have elapsed.
func (l *Limiter) RecordError(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(clientID)
	st.cooldownUntil = l.clock.Now().Add(time.Duration(l.cfg.CooldownSeconds) * time.Second)
}

// Reset clears one client's bucket, concurrency count, and cooldown in place.
func (l *Limiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.clients[clientID]
	if !ok {
		return
	}
	st.tokens = float64(l.cfg.RequestsPerMinute)
	st.lastRefill = l.clock.Now()
	st.concurrent = 0
	st.cooldownUntil = time.Time{}
	for token, owner := range l.slots {
		if owner == clientID {
			delete(l.slots, token)
		}
	}
}

// ResetAll clears every client.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = make(map[string]*clientState)
	l.slots = make(map[string]string)
}

// ClientStats is a point-in-time snapshot of one client's budget.
type ClientStats struct {
	ClientID         string  `json:"client_id"`
	AvailableTokens  float64 `json:"available_tokens"`
	ConcurrentActive int     `json:"concurrent_active"`
	InCooldown       bool    `json:"in_cooldown"`
	CooldownSeconds  int     `json:"cooldown_seconds,omitempty"`
	TotalChecks      int64   `json:"total_checks"`
	TotalRejected    int64   `json:"total_rejected"`
}

// GetStats returns the client's current budget, refreshed to now.
func (l *Limiter) GetStats(clientID string) ClientStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	st := l.state(clientID)
	l.refill(st, now)
	cooling, remaining := l.inCooldown(st, now)

	return ClientStats{
		ClientID:         clientID,
		AvailableTokens:  st.tokens,
		ConcurrentActive: st.concurrent,
		InCooldown:       cooling,
		CooldownSeconds:  remaining,
		TotalChecks:      st.totalChecks,
		TotalRejected:    st.totalRejected,
	}
}

// GlobalStats aggregates across all clients ever seen.
type GlobalStats struct {
	TrackedClients   int   `json:"tracked_clients"`
	ConcurrentActive int   `json:"concurrent_active"`
	ClientsCooling   int   `json:"clients_cooling"`
	TotalChecks      int64 `json:"total_checks"`
	TotalRejected    int64 `json:"total_rejected"`
}

// GetGlobalStats returns the aggregate limiter view.
func (l *Limiter) GetGlobalStats() GlobalStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	g := GlobalStats{TrackedClients: len(l.clients)}
	for _, st := range l.clients {
		g.ConcurrentActive += st.concurrent
		g.TotalChecks += st.totalChecks
		g.TotalRejected += st.totalRejected
		if cooling, _ := l.inCooldown(st, now); cooling {
			g.ClientsCooling++
		}
	}
	return g
}
