package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavnit/docshield/internal/audit"
	"github.com/tavnit/docshield/internal/memory"
	"github.com/tavnit/docshield/internal/monitoring"
	"github.com/tavnit/docshield/internal/ratelimit"
	"github.com/tavnit/docshield/internal/sanitize"
	"github.com/tavnit/docshield/internal/validation"
	"github.com/tavnit/docshield/pkg/clock"
	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
	"github.com/tavnit/docshield/pkg/logger"
)

// Deps carries everything the pipeline composes. Limiter, Memory, Trail, and
// Paths are required; Verifier and PII are optional stages that are skipped
// when nil.
type Deps struct {
	Limiter         *ratelimit.Limiter
	Memory          *memory.Manager
	SanitizerConfig sanitize.Config
	Trail           *audit.Logger
	Paths           PathSanitizer
	Verifier        TemplateVerifier
	PII             PIIHandler
	Logger          logger.Logger
	Metrics         *monitoring.Metrics
	Tracing         *monitoring.TracingManager
	Clock           clock.Clock
}

// Manager runs the ordered defense pipeline. Stages execute in a fixed order
// and the first rejection terminates the run; resources committed by earlier
// stages (a concurrency slot, a memory reservation) are released on every
// exit path so a rejected request leaves zero residual accounting.
type Manager struct {
	limiter   *ratelimit.Limiter
	memory    *memory.Manager
	sanitizer *sanitize.Sanitizer
	// lenient strips and normalizes without homograph rejection; used to
	// replace rather than reject individual offending field values.
	lenient   *sanitize.Sanitizer
	validator *validation.Validator
	trail     *audit.Logger
	paths     PathSanitizer
	verifier  TemplateVerifier
	pii       PIIHandler
	log       logger.Logger
	metrics   *monitoring.Metrics
	tracing   *monitoring.TracingManager
	clock     clock.Clock

	mu       sync.Mutex
	total    int64
	allowed  int64
	rejected map[constants.Layer]int64
}

// NewManager wires the pipeline.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Limiter == nil || deps.Memory == nil || deps.Trail == nil || deps.Paths == nil {
		return nil, fmt.Errorf("security: limiter, memory, trail, and paths are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics(nil)
	}

	lenientCfg := deps.SanitizerConfig
	lenientCfg.DetectHomographs = false

	return &Manager{
		limiter:   deps.Limiter,
		memory:    deps.Memory,
		sanitizer: sanitize.New(deps.SanitizerConfig),
		lenient:   sanitize.New(lenientCfg),
		validator: validation.New(),
		trail:     deps.Trail,
		paths:     deps.Paths,
		verifier:  deps.Verifier,
		pii:       deps.PII,
		log:       deps.Logger,
		metrics:   deps.Metrics,
		tracing:   deps.Tracing,
		clock:     deps.Clock,
		rejected:  make(map[constants.Layer]int64),
	}, nil
}

// ValidateRequest runs every defense layer against req. It never returns a
// raw error: each outcome, including panics inside a layer, is translated
// into a SecurityResult and an audit entry.
func (m *Manager) ValidateRequest(ctx context.Context, req SecurityRequest) (result SecurityResult) {
	start := m.clock.Now()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, req.RequestID)
	ctx = context.WithValue(ctx, constants.ContextKeyClientID, req.ClientID)

	if m.tracing != nil {
		var span trace.Span
		ctx, span = m.tracing.StartSpan(ctx, "security.validate_request")
		defer span.End()
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			m.log.Error(ctx, "validation pipeline panicked", err)
			m.trail.Error(constants.ActionInternalError, "validation pipeline panicked",
				map[string]interface{}{"request_id": req.RequestID})
			result = m.reject(ctx, req, start, errors.ErrInternal(constants.LayerManager, err))
		}
	}()

	// Layer 1: rate limiting. The concurrency slot spans the pipeline run.
	if err := m.limiter.CheckLimit(req.ClientID); err != nil {
		return m.reject(ctx, req, start, m.asSecurity(err, constants.LayerRateLimiter))
	}
	slot, err := m.limiter.Acquire(req.ClientID)
	if err != nil {
		return m.reject(ctx, req, start, m.asSecurity(err, constants.LayerRateLimiter))
	}
	defer m.limiter.Release(slot)

	// Layer 2: path sanitization.
	cleanPath, err := m.paths.Sanitize(req.TemplatePath)
	if err != nil {
		return m.reject(ctx, req, start, m.asSecurity(err, constants.LayerPathSanitizer))
	}

	// Layer 3: memory accounting. The reservation covers the pipeline run;
	// the deferred release guarantees zero residual accounting on rejection.
	memToken, err := m.memory.Allocate(req.ClientID, req.RequestSize)
	if err != nil {
		return m.reject(ctx, req, start, m.asSecurity(err, constants.LayerMemoryManager))
	}
	defer func() {
		m.memory.Release(memToken)
		m.metrics.MemoryInUse.Set(float64(m.memory.GetGlobalStats().GlobalUsage))
	}()
	m.metrics.MemoryInUse.Set(float64(m.memory.GetGlobalStats().GlobalUsage))

	// Layer 4: schema validation.
	data := req.FieldData
	if req.Schema != nil {
		data, err = m.validator.Validate(req.FieldData, req.Schema)
		if err != nil {
			return m.reject(ctx, req, start, m.asSecurity(err, constants.LayerValidator))
		}
	}

	// Layer 5: Unicode sanitization over every string value.
	data = m.sanitizeRecord(ctx, req, data, "")

	// Layer 6: template integrity.
	if m.verifier != nil {
		ok, verr := m.verifier.Verify(cleanPath)
		if verr != nil {
			return m.reject(ctx, req, start, errors.ErrInternal(constants.LayerVerifier, verr))
		}
		if !ok {
			return m.reject(ctx, req, start, errors.ErrTemplateChecksum(cleanPath))
		}
	}

	// Layer 7: PII redaction. Detected values are masked, never rejected.
	if m.pii != nil {
		data = m.redactRecord(ctx, req, data, "")
	}

	// Layer 8: audit the decision. The entry must be on disk before the
	// request is reported as allowed, so the flush is part of the layer.
	if err := m.trail.Log(audit.Entry{
		Level:    constants.AuditLevelInfo,
		Action:   constants.ActionRequestValidated,
		Message:  "request cleared all defense layers",
		ClientID: req.ClientID,
		Metadata: map[string]interface{}{
			"request_id":    req.RequestID,
			"template_path": cleanPath,
			"request_size":  req.RequestSize,
		},
	}); err != nil {
		return m.reject(ctx, req, start, errors.ErrInternal(constants.LayerAuditLogger, err))
	}
	if err := m.trail.Flush(); err != nil {
		return m.reject(ctx, req, start, errors.ErrInternal(constants.LayerAuditLogger, err))
	}

	elapsed := m.clock.Now().Sub(start)
	m.metrics.RecordValidated(req.ClientID, elapsed)
	m.mu.Lock()
	m.total++
	m.allowed++
	m.mu.Unlock()

	m.log.Info(ctx, "request validated", logger.Fields{
		"template_path": cleanPath,
		"duration_ms":   elapsed.Milliseconds(),
	})

	return SecurityResult{
		Allowed:       true,
		SanitizedData: data,
		SanitizedPath: cleanPath,
	}
}

// sanitizeRecord applies the Unicode pipeline to every string leaf. A value
// that trips homograph detection is replaced with its stripped form rather
// than failing the request; the event still lands in the trail as a security
// violation.
func (m *Manager) sanitizeRecord(ctx context.Context, req SecurityRequest, data map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out[k] = m.sanitizeValue(ctx, req, v, path)
	}
	return out
}

func (m *Manager) sanitizeValue(ctx context.Context, req SecurityRequest, v interface{}, path string) interface{} {
	switch t := v.(type) {
	case string:
		strict, lenient := m.sanitizers()
		clean, err := strict.Sanitize(t)
		if err == nil {
			return clean
		}
		replaced, _ := lenient.Sanitize(t)
		se := m.asSecurity(err, constants.LayerSanitizer)
		m.trail.Log(audit.Entry{
			Level:    constants.AuditLevelSecurity,
			Action:   constants.ActionSecurityViolation,
			Message:  se.Message,
			ClientID: req.ClientID,
			Metadata: map[string]interface{}{
				"request_id": req.RequestID,
				"field":      path,
				"code":       string(se.Code),
				"handled":    "value replaced",
			},
		})
		m.log.Warn(ctx, "suspicious field value replaced", logger.Fields{
			"field": path,
			"code":  string(se.Code),
		})
		return replaced
	case map[string]interface{}:
		return m.sanitizeRecord(ctx, req, t, path)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = m.sanitizeValue(ctx, req, item, fmt.Sprintf("%s[%d]", path, i))
		}
		return out
	default:
		return v
	}
}

// redactRecord masks PII in every string leaf.
func (m *Manager) redactRecord(ctx context.Context, req SecurityRequest, data map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out[k] = m.redactValue(ctx, req, v, path)
	}
	return out
}

func (m *Manager) redactValue(ctx context.Context, req SecurityRequest, v interface{}, path string) interface{} {
	switch t := v.(type) {
	case string:
		det := m.pii.DetectPII(t)
		if !det.Detected {
			return t
		}
		m.metrics.PIIRedactions.Inc()
		m.trail.Log(audit.Entry{
			Level:    constants.AuditLevelWarn,
			Action:   constants.ActionPIIRedacted,
			Message:  "personally identifying data masked in field value",
			ClientID: req.ClientID,
			Metadata: map[string]interface{}{
				"request_id": req.RequestID,
				"field":      path,
				"types":      det.Types,
			},
		})
		return m.pii.Sanitize(t)
	case map[string]interface{}:
		return m.redactRecord(ctx, req, t, path)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = m.redactValue(ctx, req, item, fmt.Sprintf("%s[%d]", path, i))
		}
		return out
	default:
		return v
	}
}

// asSecurity normalizes any layer failure into a *SecurityError. Unknown
// error types are programmer errors and surface as INTERNAL_ERROR.
func (m *Manager) asSecurity(err error, layer constants.Layer) *errors.SecurityError {
	if se, ok := errors.AsSecurityError(err); ok {
		return se
	}
	if ve, ok := errors.AsValidationError(err); ok {
		return ve.AsSecurity()
	}
	return errors.ErrInternal(layer, err)
}

// reject finalizes a denied request. The caller's deferred releases have not
// run yet; this only records the decision and shapes the result.
func (m *Manager) reject(ctx context.Context, req SecurityRequest, start time.Time, se *errors.SecurityError) SecurityResult {
	elapsed := m.clock.Now().Sub(start)
	m.metrics.RecordRejected(string(se.Layer), string(se.Code), elapsed)
	if m.tracing != nil {
		m.tracing.RecordError(ctx, se)
	}

	switch se.Code {
	case constants.ErrCodeRateLimitExceeded,
		constants.ErrCodeConcurrentLimitExceeded,
		constants.ErrCodeInCooldown:
		m.metrics.RecordRateLimitHit(string(se.Code))
		m.trail.LogRateLimitViolation(req.ClientID, se.Message)
	case constants.ErrCodeInternal:
		m.trail.Log(audit.Entry{
			Level:    constants.AuditLevelError,
			Action:   constants.ActionInternalError,
			Message:  se.Message,
			ClientID: req.ClientID,
			Metadata: map[string]interface{}{"request_id": req.RequestID},
		})
	default:
		m.trail.LogSecurityViolation(req.ClientID, se)
	}

	// Best effort: a rejection must not turn into a second failure when the
	// trail cannot flush, but the decision should be durable when it can.
	if err := m.trail.Flush(); err != nil {
		m.log.Error(ctx, "audit flush failed after rejection", err)
	}

	m.mu.Lock()
	m.total++
	m.rejected[se.Layer]++
	m.mu.Unlock()

	m.log.Warn(ctx, "request rejected", logger.Fields{
		"layer": string(se.Layer),
		"code":  string(se.Code),
	})

	return SecurityResult{
		Allowed: false,
		Reason:  se.Message,
		Error: &LayerError{
			Layer:   se.Layer,
			Code:    se.Code,
			Message: se.Message,
		},
	}
}

// Stats is an aggregate snapshot of pipeline activity.
type Stats struct {
	TotalRequests   int64                 `json:"totalRequests"`
	Allowed         int64                 `json:"allowed"`
	Rejected        int64                 `json:"rejected"`
	RejectedByLayer map[string]int64      `json:"rejectedByLayer"`
	RateLimiter     ratelimit.GlobalStats `json:"rateLimiter"`
	Memory          memory.GlobalStats    `json:"memory"`
}

// GetStats returns a snapshot of pipeline counters plus the limiter and
// memory accountant global views.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	byLayer := make(map[string]int64, len(m.rejected))
	var rejected int64
	for layer, n := range m.rejected {
		byLayer[string(layer)] = n
		rejected += n
	}
	s := Stats{
		TotalRequests:   m.total,
		Allowed:         m.allowed,
		Rejected:        rejected,
		RejectedByLayer: byLayer,
	}
	m.mu.Unlock()

	s.RateLimiter = m.limiter.GetGlobalStats()
	s.Memory = m.memory.GetGlobalStats()
	return s
}

func (m *Manager) sanitizers() (strict, lenient *sanitize.Sanitizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sanitizer, m.lenient
}

// UpdateSanitizerConfig swaps the Unicode pipeline stages at runtime; used by
// configuration hot reload. In-flight requests keep the pipeline they started
// with.
func (m *Manager) UpdateSanitizerConfig(cfg sanitize.Config) {
	lenientCfg := cfg
	lenientCfg.DetectHomographs = false

	m.mu.Lock()
	m.sanitizer = sanitize.New(cfg)
	m.lenient = sanitize.New(lenientCfg)
	m.mu.Unlock()
}

// RecordClientError opens the cooldown window for a client whose request
// failed downstream of validation (for example in the fill engine itself).
func (m *Manager) RecordClientError(clientID string) {
	m.limiter.RecordError(clientID)
	m.trail.Warn(constants.ActionSecurityViolation, "client placed in cooldown after downstream error",
		map[string]interface{}{"client_id": clientID})
}
