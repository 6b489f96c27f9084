package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	"tenant-gate/internal/domain"
)

// UsageGate is the quota decision point consulted by Metered.
type UsageGate interface {
	CheckAndReserve(ctx context.Context, p *domain.Principal) (*domain.UsageDecision, error)
	Record(ctx context.Context, sess domain.SessionContext, units int64, operation string) error
	TryConsume(ctx context.Context, sess domain.SessionContext, units int64, operation string) (*domain.UsageDecision, error)
}

// MeteredConfig configures the metered-operation middleware.
type MeteredConfig struct {
	// Units consumed by one successful request. Defaults to 1.
	Units int64
	// Strict consumes the units atomically before the handler runs, so
	// concurrent requests can never exceed the limit. Units are then spent
	// even when the handler fails.
	Strict bool
	// Operation names the metered operation for usage records. Defaults to
	// the request path.
	Operation func(r *http.Request) string
}

// Metered gates a route on the caller's quota. It must run after the
// Authenticator. In the default mode units are recorded only when the
// handler answered 2xx and the client did not go away first.
func Metered(gate UsageGate, cfg MeteredConfig, writeError ErrorWriter, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Units <= 0 {
		cfg.Units = 1
	}
	if cfg.Operation == nil {
		cfg.Operation = func(r *http.Request) string { return r.URL.Path }
	}
	if writeError == nil {
		writeError = writeAuthError
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metered")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, ok := domain.SessionFromContext(ctx)
			if !ok {
				writeError(w, r, domain.ErrCredential(domain.CredentialMissing, nil, "authentication required"))
				return
			}
			op := cfg.Operation(r)

			if cfg.Strict {
				d, err := gate.TryConsume(ctx, sess, cfg.Units, op)
				if err != nil {
					writeError(w, r, err)
					return
				}
				setUsageHeaders(w, d)
				if !d.Allowed {
					writeError(w, r, d.Err())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			d, err := gate.CheckAndReserve(ctx, &sess.Principal)
			if err != nil {
				writeError(w, r, err)
				return
			}
			setUsageHeaders(w, d)
			if !d.Allowed {
				writeError(w, r, d.Err())
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < 200 || status > 299 {
				return
			}
			if ctx.Err() != nil {
				logger.Info("metered operation abandoned by client, usage not recorded",
					"principal_id", sess.Principal.ID, "operation", op)
				return
			}
			if err := gate.Record(ctx, sess, cfg.Units, op); err != nil {
				logger.Error("usage not recorded after successful operation",
					"principal_id", sess.Principal.ID, "operation", op, "units", cfg.Units, "error", err)
			}
		})
	}
}

func setUsageHeaders(w http.ResponseWriter, d *domain.UsageDecision) {
	if d == nil {
		return
	}
	w.Header().Set("X-Usage-Current", strconv.FormatInt(d.CurrentUsage, 10))
	w.Header().Set("X-Usage-Limit", d.Limit.String())
}
