package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/internal/auth"
	"github.com/stockbook/stockbook/internal/inventory"
	"github.com/stockbook/stockbook/internal/observability"
	_ "github.com/stockbook/stockbook/internal/testing/guard"
)

func TestInTestModeFromGuard(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/stockbook_test")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 16384, cfg.AuditMaxDetailBytes)
	require.Equal(t, 6, cfg.DashboardLowStockLimit)
	require.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	require.False(t, cfg.AllowNegativeStock)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsWeakBootstrapPassword(t *testing.T) {
	t.Setenv("BOOTSTRAP_ADMIN_USER", "admin")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "short")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Info("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "stockbook", line["service"])
	require.Equal(t, "production", line["env"])
}

func newTestRouter(params RouterParams) http.Handler {
	if params.Config == nil {
		params.Config = &Config{AppEnv: "test", AppRequestTimeout: time.Second}
	}
	return NewRouter(params)
}

func TestHealthzReportsDependencies(t *testing.T) {
	router := newTestRouter(RouterParams{Health: map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestHealthzDegraded(t *testing.T) {
	router := newTestRouter(RouterParams{Health: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded","redis":"down"}`, rec.Body.String())
}

func TestAPIRequiresCredentials(t *testing.T) {
	router := newTestRouter(RouterParams{
		Auth:             auth.Middleware{},
		InventoryHandler: inventory.NewHandler(nil, nil, auth.Middleware{}),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/items", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestUnknownRouteIsProblem(t *testing.T) {
	router := newTestRouter(RouterParams{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	metrics := observability.NewMetrics()
	router := newTestRouter(RouterParams{Metrics: metrics})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `stockbook_http_requests_total{code="200",route="/healthz"} 1`)
}
