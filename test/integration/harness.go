// Package integration provides a reusable test harness for end-to-end
// testing of the reviewflow server. It starts a full HTTP server with an
// in-memory task store, a static principal directory, capture endpoints for
// notification and lifecycle callbacks, and a test JWT issuer.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kevinvdv/reviewflow/internal/config"
	"github.com/kevinvdv/reviewflow/internal/definition"
	"github.com/kevinvdv/reviewflow/internal/eligibility"
	"github.com/kevinvdv/reviewflow/internal/engine"
	"github.com/kevinvdv/reviewflow/internal/lifecycle"
	"github.com/kevinvdv/reviewflow/internal/notify"
	"github.com/kevinvdv/reviewflow/internal/observability"
	"github.com/kevinvdv/reviewflow/internal/transport"
	"github.com/kevinvdv/reviewflow/model"
)

// TestHarness encapsulates a fully wired reviewflow instance for
// integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Registry  *definition.Registry
	Store     *engine.MemoryTaskStore
	Engine    *engine.Engine
	Notifier  *CallSink
	Lifecycle *CallSink
}

// CallSink is a capture HTTP server recording every request it receives.
type CallSink struct {
	mu     sync.Mutex
	server *httptest.Server
	calls  []SinkCall
}

// SinkCall is one captured HTTP request.
type SinkCall struct {
	Path string
	Body map[string]any
}

func newCallSink(t *testing.T) *CallSink {
	t.Helper()
	sink := &CallSink{}
	sink.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)

		sink.mu.Lock()
		sink.calls = append(sink.calls, SinkCall{Path: r.URL.Path, Body: body})
		sink.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(sink.server.Close)
	return sink
}

// Calls returns a copy of the captured requests.
func (s *CallSink) Calls() []SinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SinkCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// WaitForCalls polls until at least n requests have been captured.
func (s *CallSink) WaitForCalls(t *testing.T, n int) []SinkCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := s.Calls(); len(calls) >= n {
			return calls
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("captured %d calls, want at least %d", len(s.Calls()), n)
	return nil
}

// NewHarness builds and starts a complete reviewflow server backed by the
// in-memory task store and the testdata definitions and directory.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	issuer := newTokenIssuer(t)
	notifierSink := newCallSink(t)
	lifecycleSink := newCallSink(t)

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Identity.Issuer = issuer.issuer
	cfg.Identity.Audience = issuer.audience
	cfg.Identity.JWKSURL = issuer.JWKSURL()
	cfg.Identity.JWKSCacheTTL = time.Hour
	cfg.Notifier.WebhookURL = notifierSink.server.URL
	cfg.Lifecycle.BaseURL = lifecycleSink.server.URL
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"

	loader := definition.NewLoader()
	defs, err := loader.LoadAll([]string{testdataPath(t, "definitions")})
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(defs); len(verrs) > 0 {
		t.Fatalf("definition validation: %v", verrs)
	}
	registry := definition.NewRegistry(defs)

	directory, err := eligibility.NewStaticDirectory(testdataPath(t, "groups.yaml"))
	if err != nil {
		t.Fatalf("load directory: %v", err)
	}

	store := engine.NewMemoryTaskStore()
	resolver := eligibility.NewResolver(directory, store)

	eng := engine.NewEngine(
		registry, store, resolver,
		notify.NewService(cfg.Notifier),
		lifecycle.NewService(cfg.Lifecycle),
		zap.NewNop(), engine.Options{},
	)

	promReg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(promReg)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, zap.NewNop())
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       zap.NewNop(),
		Engine:       eng,
		Metrics:      metrics,
		Registry:     promReg,
		Readiness:    observability.ReadinessChecks{DefinitionsLoaded: func() bool { return len(registry.Types()) > 0 }},
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		t:         t,
		server:    server,
		issuer:    issuer,
		Registry:  registry,
		Store:     store,
		Engine:    eng,
		Notifier:  notifierSink,
		Lifecycle: lifecycleSink,
	}
}

func testdataPath(t *testing.T, parts ...string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testdata directory")
	}
	return filepath.Join(append([]string{filepath.Dir(thisFile), "testdata"}, parts...)...)
}

// GenerateToken creates a valid signed JWT for the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that expired in the past.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GET performs an authenticated GET request against the harness server.
func (h *TestHarness) GET(path, token string) *http.Response {
	return h.doRequest(http.MethodGet, path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	return h.doRequest(http.MethodPost, path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// ParseJSON decodes the response body into target and closes the body.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// AssertStatus fails the test when the response status does not match.
func (h *TestHarness) AssertStatus(resp *http.Response, expected int) {
	h.t.Helper()
	if resp.StatusCode != expected {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		h.t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, expected, raw)
	}
}

// ErrorCode decodes the error envelope from the response and returns its code.
func (h *TestHarness) ErrorCode(resp *http.Response) string {
	h.t.Helper()
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &body)
	if body.Error == nil {
		h.t.Fatal("response carries no error envelope")
	}
	return body.Error.Code
}
