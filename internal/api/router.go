package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openlearn/engage/internal/auth"
	"github.com/openlearn/engage/internal/health"
	"github.com/openlearn/engage/internal/middleware"
	"github.com/openlearn/engage/internal/roster"
)

// RouterConfig holds the dependencies for the roster API router.
type RouterConfig struct {
	Store          roster.Store
	JWTService     *auth.JWTService
	InternalToken  string
	Registry       *prometheus.Registry
	Logger         *slog.Logger
	Health         *health.Handler
	HTTPMetrics    *middleware.Metrics
	RateLimitStore middleware.RateLimitStore
	CORS           middleware.CORSConfig
	ServiceName    string
}

// NewRouter builds the roster API handler with the full middleware chain:
// RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> rate limiting,
// with JWT bearer auth on the roster routes and the internal token on
// /metrics. Health endpoints bypass auth and rate limiting.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "engage-rosterd"
	}

	rosterHandlers := NewRosterHandlers(cfg.Store, cfg.Logger)

	mux := http.NewServeMux()

	// Roster routes behind JWT auth and per-user rate limiting
	rosterChain := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if cfg.RateLimitStore != nil {
			handler = middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultRosterLimit(), middleware.UserKeyFunc())(handler)
		}
		if cfg.JWTService != nil {
			handler = BearerAuth(cfg.JWTService)(handler)
		}
		return handler
	}
	mux.Handle("GET /courses", rosterChain(rosterHandlers.ListCourses))
	mux.Handle("GET /engagement", rosterChain(rosterHandlers.GetEngagement))
	mux.Handle("GET /modules", rosterChain(rosterHandlers.GetModules))

	// Metrics behind the internal token
	if cfg.Registry != nil {
		mux.Handle("GET /metrics", InternalAuthMiddleware(cfg.InternalToken)(MetricsHandler(cfg.Registry)))
	}

	// Health endpoints are unauthenticated for probes
	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.Live)
		mux.HandleFunc("GET /ready", cfg.Health.Ready)
	}

	// Outer middleware chain, innermost listed first
	var handler http.Handler = mux
	handler = middleware.CORS(cfg.CORS)(handler)
	if cfg.HTTPMetrics != nil {
		handler = middleware.HTTPMetrics(cfg.HTTPMetrics)(handler)
	}
	handler = middleware.Logging(cfg.Logger)(handler)
	handler = middleware.Tracing(cfg.ServiceName)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
