package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kevinvdv/reviewflow/internal/config"
	"github.com/kevinvdv/reviewflow/internal/engine"
	"github.com/kevinvdv/reviewflow/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Engine       *engine.Engine
	Metrics      *observability.Metrics
	Registry     *prometheus.Registry
	Readiness    observability.ReadinessChecks
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled && deps.Registry != nil {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.MetricsHandler(deps.Registry))
	}

	// Authenticated routes carry the full chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		// Tracing opens the span before the request context is built, so
		// the context carries the live trace and span IDs.
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		if deps.Metrics != nil {
			r.Use(observability.MetricsMiddleware(deps.Metrics))
		}

		r.Post("/workflow/items", handleItemEnter(deps.Engine, deps.Metrics))
		r.Get("/workflow/items/{itemId}", handleItemGet(deps.Engine))
		r.Post("/workflow/items/{itemId}/steps/{stepId}/claim", handleTaskClaim(deps.Engine, deps.Metrics))
		r.Post("/workflow/items/{itemId}/steps/{stepId}/unclaim", handleTaskUnclaim(deps.Engine, deps.Metrics))
		r.Post("/workflow/items/{itemId}/steps/{stepId}/complete", handleTaskComplete(deps.Engine, deps.Metrics))
		r.Post("/workflow/items/{itemId}/abort", handleItemAbort(deps.Engine, deps.Metrics))
		r.Get("/workflow/tasks/pooled", handlePooledTasks(deps.Engine))
		r.Get("/workflow/tasks/claimed", handleClaimedTasks(deps.Engine))
	})

	return r
}
