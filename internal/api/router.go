package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenant-gate/internal/middleware"
)

// RouterConfig holds everything NewRouter wires in front of the handler.
type RouterConfig struct {
	Authenticator  *middleware.Authenticator
	UsageGate      middleware.UsageGate
	Metered        middleware.MeteredConfig
	RateLimit      middleware.RateLimitConfig
	AllowedOrigins []string
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter builds the gate's HTTP router. Every /v1 route is authenticated;
// /v1/operations/{name} is additionally metered. A zero RequestsPerSecond
// disables rate limiting; otherwise limiter cleanup stops when ctx is done.
func NewRouter(ctx context.Context, h *APIHandler, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Metered.Operation == nil {
		cfg.Metered.Operation = OperationFromPath
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Usage-Current", "X-Usage-Limit", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limit = middleware.RateLimiter(ctx, cfg.RateLimit)
	}

	r.Route("/v1", func(r chi.Router) {
		// Ending an impersonation twice must keep answering with the hint.
		r.With(cfg.Authenticator.EndingMiddleware(), limit).
			Delete("/impersonation", h.EndImpersonation)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Authenticator.Middleware(), limit)

			r.Get("/session", h.GetSession)
			r.Patch("/profile", h.UpdateProfile)
			r.Post("/impersonation", h.StartImpersonation)
			r.Get("/usage", h.GetUsage)
			r.Get("/audit", h.ListAuditLogs)

			r.With(middleware.Metered(cfg.UsageGate, cfg.Metered, WriteError, cfg.Logger)).
				Post("/operations/{name}", h.RunOperation)
		})
	})

	return r
}
