package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoeshop/shoeshop/internal/observability"
	"github.com/shoeshop/shoeshop/internal/platform/httpx"
	"github.com/shoeshop/shoeshop/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("SESSION_TTL", "2h")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, int64(1), cfg.BootstrapUserID)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "shoeshop_session", cfg.SessionCookie)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("CSRF_SECRET", "secret")
	t.Setenv("BOOTSTRAP_USER_ID", "0")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("BOOTSTRAP_USER_ID", "1")
	t.Setenv("CSRF_SECRET", "  ")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRouter(RouterParams{
		Config:         &Config{AppEnv: "test", CSRFSecret: "secret", RateLimitPerMin: 100},
		SessionManager: shared.NewSessionManager(client, "sid", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("secret"),
		Metrics:        observability.NewMetrics(),
	})
}

func TestRouterHealthAndHeaders(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Result().Cookies(), "anonymous sessions are not persisted")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shoeshop_http_requests_total")
}

func TestRouterProblemResponses(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	// Unsafe requests without a CSRF token are rejected before routing.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "CSRF token missing or incorrect.", problem.Detail)
}
