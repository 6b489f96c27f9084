package api

import (
	"net/http"
	"time"

	"tenant-gate/internal/domain"
)

// Session is the diagnostic view of the caller's identity. It never echoes
// the raw credential.
type Session struct {
	PrincipalID        string     `json:"principal_id"`
	ExternalIdentityID string     `json:"external_identity_id"`
	Email              string     `json:"email,omitempty"`
	DisplayName        string     `json:"display_name,omitempty"`
	TenantID           string     `json:"tenant_id,omitempty"`
	Role               string     `json:"role"`
	Impersonating      bool       `json:"impersonating"`
	ActingPrincipalID  string     `json:"acting_principal_id,omitempty"`
	ImpersonationID    string     `json:"impersonation_id,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

// UpdateProfileRequest is the body of PATCH /v1/profile.
type UpdateProfileRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Principal is the JSON view of a principal.
type Principal struct {
	ID                 string    `json:"id"`
	ExternalIdentityID string    `json:"external_identity_id"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"display_name"`
	TenantID           *string   `json:"tenant_id"`
	Role               string    `json:"role"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GetSession returns the caller's effective session.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionToAPI(sess))
}

// UpdateProfile changes the caller's email and display name. It is refused
// while impersonating so an operator cannot edit their profile through an
// elevated credential.
func (h *APIHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	if sess.Impersonating {
		WriteError(w, r, domain.ErrAccessDenied("end the impersonation before editing your profile"))
		return
	}
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	p, err := h.profiles.UpdateProfile(r.Context(), sess.Principal.ID, req.Email, req.DisplayName)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, principalToAPI(*p))
}

func sessionToAPI(s domain.SessionContext) Session {
	out := Session{
		PrincipalID:        s.Principal.ID,
		ExternalIdentityID: s.Principal.ExternalIdentityID,
		Email:              s.Principal.Email,
		DisplayName:        s.Principal.DisplayName,
		TenantID:           s.TenantID,
		Role:               s.Role,
		Impersonating:      s.Impersonating,
		ActingPrincipalID:  s.ActingPrincipalID,
		ImpersonationID:    s.ImpersonationID,
	}
	if !s.ExpiresAt.IsZero() {
		t := s.ExpiresAt.UTC()
		out.ExpiresAt = &t
	}
	return out
}

func principalToAPI(p domain.Principal) Principal {
	return Principal{
		ID:                 p.ID,
		ExternalIdentityID: p.ExternalIdentityID,
		Email:              p.Email,
		DisplayName:        p.DisplayName,
		TenantID:           p.TenantID,
		Role:               p.Role,
		UpdatedAt:          p.UpdatedAt,
	}
}
