package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevinvdv/reviewflow/internal/config"
	"github.com/kevinvdv/reviewflow/internal/definition"
	"github.com/kevinvdv/reviewflow/internal/engine"
	"github.com/kevinvdv/reviewflow/internal/observability"
)

func newRouterFixture(t *testing.T, metricsEnabled bool) http.Handler {
	t.Helper()

	reg := definition.NewRegistry(testDefinitions())
	store := engine.NewMemoryTaskStore()
	eng := engine.NewEngine(reg, store, defaultTestResolver(), noopNotifier{}, noopLifecycle{}, zap.NewNop(), engine.Options{})

	promReg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(promReg)

	cfg := &config.Config{}
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Observability.Metrics.Enabled = metricsEnabled
	cfg.Observability.Metrics.Path = "/metrics"

	return NewRouter(Dependencies{
		Config:       cfg,
		Logger:       zap.NewNop(),
		Engine:       eng,
		Metrics:      metrics,
		Registry:     promReg,
		Readiness:    observability.ReadinessChecks{DefinitionsLoaded: func() bool { return true }},
		Authenticate: claimsAuth,
	})
}

func TestRouter_healthBypassesAuth(t *testing.T) {
	router := newRouterFixture(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestRouter_readyBypassesAuth(t *testing.T) {
	router := newRouterFixture(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", w.Code)
	}
}

func TestRouter_metricsEndpoint(t *testing.T) {
	router := newRouterFixture(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "reviewflow_") {
		t.Error("no reviewflow metrics in scrape output")
	}
}

func TestRouter_metricsDisabled(t *testing.T) {
	router := newRouterFixture(t, false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404", w.Code)
	}
}

func TestRouter_workflowRoutesRequireAuth(t *testing.T) {
	router := newRouterFixture(t, true)

	paths := []struct {
		method string
		path   string
	}{
		{"POST", "/workflow/items"},
		{"GET", "/workflow/items/some-id"},
		{"POST", "/workflow/items/some-id/steps/review/claim"},
		{"POST", "/workflow/items/some-id/steps/review/unclaim"},
		{"POST", "/workflow/items/some-id/steps/review/complete"},
		{"POST", "/workflow/items/some-id/abort"},
		{"GET", "/workflow/tasks/pooled"},
		{"GET", "/workflow/tasks/claimed"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestRouter_setsCorrelationAndSecurityHeaders(t *testing.T) {
	router := newRouterFixture(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Header().Get("X-Correlation-Id") == "" {
		t.Error("no correlation ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("no security headers")
	}
}

func TestRouter_requestContextCarriesTraceIdentity(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	core, logs := observer.New(zap.InfoLevel)

	reg := definition.NewRegistry(testDefinitions())
	store := engine.NewMemoryTaskStore()
	eng := engine.NewEngine(reg, store, defaultTestResolver(), noopNotifier{}, noopLifecycle{}, zap.NewNop(), engine.Options{})

	cfg := &config.Config{}
	cfg.Server.HandlerTimeout = 5 * time.Second

	router := NewRouter(Dependencies{
		Config:       cfg,
		Logger:       zap.New(core),
		Engine:       eng,
		Readiness:    observability.ReadinessChecks{DefinitionsLoaded: func() bool { return true }},
		Authenticate: claimsAuth,
	})

	req := httptest.NewRequest("GET", "/workflow/tasks/pooled", nil)
	req.Header.Set("X-Test-Subject", "user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// The span opens before the request context is built, so the request
	// log carries the live trace ID.
	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("request log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	traceID, ok := fields["trace_id"].(string)
	if !ok || traceID == "" {
		t.Fatalf("trace_id = %v, want non-empty", fields["trace_id"])
	}
}

func TestRouter_unknownRoute(t *testing.T) {
	router := newRouterFixture(t, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
