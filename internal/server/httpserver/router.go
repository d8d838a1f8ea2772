package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stephzylstra/kinetic-sim/internal/server/httpserver/handler"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Deps are the device components served by the ops endpoints.
	Deps handler.Deps

	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// AllowList restricts the device endpoints to these IPs/CIDRs
	// (empty = no restriction). /health, /ready and /metrics are open.
	AllowList []string

	// RateLimit is the per-IP limit in requests/second (0 = unlimited).
	RateLimit int
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit: 100,
	}
}

// NewRouter creates the ops router.
//
//	GET /health              liveness
//	GET /ready               storage answers
//	GET /metrics             Prometheus exposition
//	GET /status              build info and uptime
//	GET /connections         open Kinetic connections
//	GET /connections/{id}    one connection
//	GET /acl                 ACL summary without keys
//	GET /storage             storage engine statistics
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps := cfg.Deps
	if deps.Logger == nil {
		deps.Logger = logger
	}
	h := handler.New(deps)

	r := chi.NewRouter()
	r.Use(RequestID(), Recover(logger))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(AccessLog(logger))
		if len(cfg.AllowList) > 0 {
			r.Use(NetworkACL(&NetworkACLConfig{AllowList: cfg.AllowList, Logger: logger}))
		}
		if cfg.RateLimit > 0 {
			r.Use(RateLimit(cfg.RateLimit))
		}

		r.Get("/status", h.Status)
		r.Get("/connections", h.ListConnections)
		r.Get("/connections/{id}", h.GetConnection)
		r.Get("/acl", h.ACL)
		r.Get("/storage", h.Storage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "KS-OPS-4040", "not found")
	})
	return r
}
