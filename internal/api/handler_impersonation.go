package api

import (
	"net/http"
	"time"
)

// StartImpersonationRequest is the body of POST /v1/impersonation.
type StartImpersonationRequest struct {
	TenantID string `json:"tenant_id"`
}

// Elevation carries the elevated credential back to the operator.
type Elevation struct {
	Credential      string    `json:"credential"`
	ExpiresAt       time.Time `json:"expires_at"`
	ImpersonationID string    `json:"impersonation_id"`
	TenantID        string    `json:"tenant_id"`
}

// EndImpersonation is the body returned by DELETE /v1/impersonation.
type EndImpersonation struct {
	RedirectHint string `json:"redirect_hint"`
	Ended        bool   `json:"ended"`
}

// StartImpersonation issues an elevated credential for the target tenant.
func (h *APIHandler) StartImpersonation(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req StartImpersonationRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	elev, err := h.impersonation.Start(r.Context(), sess, req.TenantID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Elevation{
		Credential:      elev.Credential,
		ExpiresAt:       elev.ExpiresAt.UTC(),
		ImpersonationID: elev.ImpersonationID,
		TenantID:        elev.TenantID,
	})
}

// EndImpersonation ends the caller's impersonation. Calling it without one
// is harmless and still returns a redirect hint.
func (h *APIHandler) EndImpersonation(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	res, err := h.impersonation.End(r.Context(), sess)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EndImpersonation{RedirectHint: res.RedirectHint, Ended: res.Ended})
}
