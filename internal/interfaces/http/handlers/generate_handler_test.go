package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavnit/docshield/internal/audit"
	"github.com/tavnit/docshield/internal/memory"
	"github.com/tavnit/docshield/internal/monitoring"
	"github.com/tavnit/docshield/internal/ratelimit"
	"github.com/tavnit/docshield/internal/sanitize"
	"github.com/tavnit/docshield/internal/security"
	"github.com/tavnit/docshield/pkg/clock"
	"github.com/tavnit/docshield/pkg/logger"
)

func newTestEngine(t *testing.T) (*gin.Engine, *clock.Fake) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	paths, err := security.NewFSPathSanitizer([]string{root})
	require.NoError(t, err)

	trail, err := audit.NewLogger(audit.Config{LogDir: t.TempDir()}, fake, nil)
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	manager, err := security.NewManager(security.Deps{
		Limiter: ratelimit.New(ratelimit.Config{
			RequestsPerMinute: 5,
			MaxConcurrent:     5,
			CooldownSeconds:   60,
		}, fake),
		Memory: memory.New(memory.Config{
			MaxPerDocument: 1024 * 1024,
			MaxTotal:       10 * 1024 * 1024,
			MaxBatchSize:   10,
		}, fake),
		SanitizerConfig: sanitize.DefaultConfig(),
		Trail:           trail,
		Paths:           paths,
		PII:             security.NewRegexPIIHandler(),
		Metrics:         monitoring.NewMetrics(prometheus.NewRegistry()),
		Clock:           fake,
	})
	require.NoError(t, err)

	engine := gin.New()
	h := NewGenerateHandler(manager, logger.NewNoopLogger())
	engine.POST("/v1/documents/generate", h.Generate)
	engine.GET("/v1/security/stats", NewStatsHandler(manager).Stats)
	engine.GET("/healthz", NewHealthHandler("test").Healthz)
	return engine, fake
}

func postGenerate(t *testing.T, engine *gin.Engine, clientID string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/generate", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-ID", clientID)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestGenerate_CleanRequest(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := postGenerate(t, engine, "client-a", map[string]interface{}{
		"templatePath": "lease.tpl",
		"fieldData":    map[string]interface{}{"tenant": "דנה"},
		"requestSize":  1024,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res security.SecurityResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Allowed)
	assert.Equal(t, "דנה", res.SanitizedData["tenant"])
}

func TestGenerate_RequiresClientID(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := postGenerate(t, engine, "", map[string]interface{}{
		"templatePath": "lease.tpl",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_ClientIDFromBody(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := postGenerate(t, engine, "", map[string]interface{}{
		"clientId":     "client-b",
		"templatePath": "lease.tpl",
		"requestSize":  64,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGenerate_MalformedBody(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/generate", bytes.NewReader([]byte("{nope")))
	req.Header.Set("X-Client-ID", "client-a")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_RateLimited(t *testing.T) {
	engine, _ := newTestEngine(t)

	body := map[string]interface{}{
		"templatePath": "lease.tpl",
		"requestSize":  64,
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, postGenerate(t, engine, "client-a", body).Code)
	}

	w := postGenerate(t, engine, "client-a", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var res security.SecurityResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotNil(t, res.Error)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", string(res.Error.Code))
}

func TestGenerate_PathTraversalForbidden(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := postGenerate(t, engine, "client-a", map[string]interface{}{
		"templatePath": "../../etc/passwd",
		"requestSize":  64,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerate_OversizedRequest(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := postGenerate(t, engine, "client-a", map[string]interface{}{
		"templatePath": "lease.tpl",
		"requestSize":  2 * 1024 * 1024,
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGenerate_NegativeRequestSize(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := postGenerate(t, engine, "client-a", map[string]interface{}{
		"templatePath": "lease.tpl",
		"requestSize":  -50,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var res security.SecurityResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotNil(t, res.Error)
	assert.Equal(t, "INVALID_ALLOCATION", string(res.Error.Code))

	// The poisoned request must not widen the budget other clients see.
	req := httptest.NewRequest(http.MethodGet, "/v1/security/stats", nil)
	sw := httptest.NewRecorder()
	engine.ServeHTTP(sw, req)
	var stats security.Stats
	require.NoError(t, json.Unmarshal(sw.Body.Bytes(), &stats))
	assert.Equal(t, int64(0), stats.Memory.GlobalUsage)
}

func TestStatsEndpoint(t *testing.T) {
	engine, _ := newTestEngine(t)

	require.Equal(t, http.StatusOK, postGenerate(t, engine, "client-a", map[string]interface{}{
		"templatePath": "lease.tpl",
		"requestSize":  64,
	}).Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/security/stats", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats security.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.Allowed)
}

func TestHealthz(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
