// Package api provides the HTTP handlers for the tenant gate.
package api

import (
	"context"
	"net/http"

	"tenant-gate/internal/domain"
)

// impersonationService defines the impersonation operations used by the API handler.
type impersonationService interface {
	Start(ctx context.Context, sess domain.SessionContext, targetTenantID string) (*domain.Elevation, error)
	End(ctx context.Context, sess domain.SessionContext) (*domain.EndResult, error)
}

// usageService defines the usage operations used by the API handler.
type usageService interface {
	Snapshot(ctx context.Context, p *domain.Principal) (*domain.UsageDecision, error)
}

// profileService defines the principal operations used by the API handler.
type profileService interface {
	UpdateProfile(ctx context.Context, principalID, email, displayName string) (*domain.Principal, error)
}

// APIHandler serves the gate's HTTP surface.
type APIHandler struct {
	impersonation impersonationService
	usage         usageService
	profiles      profileService
	audit         auditService
}

// NewHandler creates a new APIHandler with all required service dependencies.
func NewHandler(
	impersonation impersonationService,
	usage usageService,
	profiles profileService,
	audit auditService,
) *APIHandler {
	return &APIHandler{
		impersonation: impersonation,
		usage:         usage,
		profiles:      profiles,
		audit:         audit,
	}
}

// Healthz reports liveness.
func (h *APIHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFrom returns the request's session. The auth middleware guarantees
// one on every route that calls it.
func sessionFrom(w http.ResponseWriter, r *http.Request) (domain.SessionContext, bool) {
	sess, ok := domain.SessionFromContext(r.Context())
	if !ok {
		WriteError(w, r, domain.ErrCredential(domain.CredentialMissing, nil, "authentication required"))
	}
	return sess, ok
}
