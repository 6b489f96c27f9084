package domain

import "time"

// SessionContext is the per-request identity consumed by every downstream
// operation. It is built once per request and never mutated.
type SessionContext struct {
	Principal         Principal
	TenantID          string
	Role              string
	Impersonating     bool
	ActingPrincipalID string // operator id while impersonating, else ""
	ImpersonationID   string // `jti` of the elevated credential
	ExpiresAt         time.Time
	// Revoked marks an elevated credential that was already ended. Only the
	// end-impersonation route admits such a session.
	Revoked bool
}

// AuditActorID returns the identity every write-path audit record must be
// attributed to: the real operator while impersonating.
func (s SessionContext) AuditActorID() string {
	if s.Impersonating && s.ActingPrincipalID != "" {
		return s.ActingPrincipalID
	}
	return s.Principal.ID
}

// Elevation is the result of starting an impersonation.
type Elevation struct {
	Credential      string
	ExpiresAt       time.Time
	ImpersonationID string
	TenantID        string
}

// EndResult is the result of ending an impersonation. Ended is false when the
// session was not impersonating and nothing happened.
type EndResult struct {
	RedirectHint string
	Ended        bool
}
