// Package middleware provides the HTTP middleware that turns a bearer
// credential into a per-request session and guards metered routes.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/service/session"
)

// CredentialVerifier validates a raw bearer credential.
type CredentialVerifier interface {
	Verify(ctx context.Context, raw string) (*domain.Claims, error)
}

// PrincipalResolver maps verified claims to a durable principal.
type PrincipalResolver interface {
	Resolve(ctx context.Context, claims *domain.Claims) (*domain.Principal, error)
}

// RevocationChecker reports whether a credential id was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, credentialID string) (bool, error)
}

// ErrorWriter renders err as an HTTP error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator verifies the bearer credential, resolves the principal and
// stores the resulting SessionContext in the request context.
type Authenticator struct {
	verifier    CredentialVerifier
	resolver    PrincipalResolver
	revocations RevocationChecker
	writeError  ErrorWriter
	logger      *slog.Logger
}

// NewAuthenticator creates an Authenticator. revocations may be nil, in which
// case elevated credentials are only bounded by their expiry. writeError
// defaults to a minimal JSON 401/500 writer.
func NewAuthenticator(
	verifier CredentialVerifier,
	resolver PrincipalResolver,
	revocations RevocationChecker,
	writeError ErrorWriter,
	logger *slog.Logger,
) *Authenticator {
	if writeError == nil {
		writeError = writeAuthError
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		verifier:    verifier,
		resolver:    resolver,
		revocations: revocations,
		writeError:  writeError,
		logger:      logger.With("component", "auth"),
	}
}

// Middleware returns the authentication middleware. The handler is never
// called unless a session was built. Revoked elevated credentials are refused.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return a.middleware(false)
}

// EndingMiddleware is Middleware for the end-impersonation route: a revoked
// but unexpired elevated credential passes through with SessionContext.Revoked
// set, so a retried end still gets its redirect hint.
func (a *Authenticator) EndingMiddleware() func(http.Handler) http.Handler {
	return a.middleware(true)
}

func (a *Authenticator) middleware(allowRevoked bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := a.authenticate(r, allowRevoked)
			if err != nil {
				a.logRejection(r, err)
				a.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.WithSession(r.Context(), sess)))
		})
	}
}

// Authenticate runs verification, revocation, resolution and session
// construction in that order for r.
func (a *Authenticator) Authenticate(r *http.Request) (domain.SessionContext, error) {
	return a.authenticate(r, false)
}

func (a *Authenticator) authenticate(r *http.Request, allowRevoked bool) (domain.SessionContext, error) {
	ctx := r.Context()
	raw, ok := bearerToken(r)
	if !ok {
		return domain.SessionContext{}, domain.ErrCredential(domain.CredentialMissing, nil,
			"provide a bearer credential in the Authorization header")
	}

	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return domain.SessionContext{}, err
	}

	var revoked bool
	if claims.Impersonating && a.revocations != nil {
		revoked, err = a.revocations.IsRevoked(ctx, claims.CredentialID)
		if err != nil {
			return domain.SessionContext{}, &domain.StoreError{Op: "check revocation", Err: err}
		}
		if revoked && !allowRevoked {
			return domain.SessionContext{}, domain.ErrCredential(domain.CredentialRevoked, nil,
				"elevated credential %s has been ended", claims.CredentialID)
		}
	}

	p, err := a.resolver.Resolve(ctx, claims)
	if err != nil {
		return domain.SessionContext{}, err
	}
	sess, err := session.Build(claims, p)
	if err != nil {
		return domain.SessionContext{}, err
	}
	sess.Revoked = revoked
	return sess, nil
}

func (a *Authenticator) logRejection(r *http.Request, err error) {
	attrs := []any{"path", r.URL.Path, "request_id", domain.RequestIDFromContext(r.Context())}
	var (
		cerr *domain.CredentialError
		serr *domain.StoreError
	)
	switch {
	case errors.As(err, &cerr):
		a.logger.Debug("credential rejected", append(attrs, "reason", string(cerr.Code), "error", err)...)
	case errors.As(err, &serr):
		a.logger.Error("authentication failed", append(attrs, "cause", "infrastructure", "error", err)...)
	default:
		a.logger.Warn("authentication failed", append(attrs, "error", err)...)
	}
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	reason := "INTERNAL"
	var cerr *domain.CredentialError
	if errors.As(err, &cerr) {
		status = http.StatusUnauthorized
		reason = string(cerr.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    status,
		"reason":  reason,
		"message": err.Error(),
	})
}
