package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	ItemsEnteredTotal  *prometheus.CounterVec
	ClaimsTotal        *prometheus.CounterVec
	UnclaimsTotal      *prometheus.CounterVec
	CompletionsTotal   *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	ItemsTerminalTotal *prometheus.CounterVec
	ItemsStalledTotal  *prometheus.CounterVec

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Workflow
		ItemsEnteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_items_entered_total",
			Help: "Total number of workflow items entered.",
		}, []string{"workflow_type"}),
		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_claims_total",
			Help: "Total number of task claims.",
		}, []string{"step_id"}),
		UnclaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_unclaims_total",
			Help: "Total number of tasks returned to the pool.",
		}, []string{"step_id"}),
		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_completions_total",
			Help: "Total number of completed step actions.",
		}, []string{"workflow_type", "step_id", "outcome"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_transitions_total",
			Help: "Total number of step transitions.",
		}, []string{"workflow_type", "from_step", "to_step"}),
		ItemsTerminalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_items_terminal_total",
			Help: "Total number of items reaching a terminal state.",
		}, []string{"workflow_type", "status"}),
		ItemsStalledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_items_stalled_total",
			Help: "Total number of items stalled on a step with no eligible principals.",
		}, []string{"workflow_type", "step_id"}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewflow_definition_reload_total",
			Help: "Total number of workflow definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewflow_definitions_loaded",
			Help: "Number of workflow types currently loaded.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ItemsEnteredTotal,
		m.ClaimsTotal,
		m.UnclaimsTotal,
		m.CompletionsTotal,
		m.TransitionsTotal,
		m.ItemsTerminalTotal,
		m.ItemsStalledTotal,
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
	)
	return m
}

// MetricsHandler returns the Prometheus scrape handler for the registry.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// MetricsMiddleware records per-request counters and latency, labeled by the
// chi route pattern rather than the raw path so item IDs don't explode
// cardinality.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &metricsStatusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(
				r.Method, pattern, strconv.Itoa(sw.status),
			).Inc()
			m.HTTPRequestDuration.WithLabelValues(
				r.Method, pattern,
			).Observe(time.Since(start).Seconds())
		})
	}
}

// metricsStatusWriter wraps http.ResponseWriter to capture the status code.
type metricsStatusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsStatusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsStatusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
