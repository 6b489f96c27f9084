package domain

import "time"

// Audit actions written by the gate.
const (
	ActionImpersonationStart = "impersonation_start"
	ActionImpersonationEnd   = "impersonation_end"
)

// Audit metadata keys.
const (
	AuditMetaImpersonationID = "impersonation_id"
	AuditMetaExpiresAt       = "expires_at"
	AuditMetaRequestID       = "request_id"
)

// AuditEntry is an append-only audit record. Impersonation start and end are
// separate entries paired through AuditMetaImpersonationID.
type AuditEntry struct {
	ID               string
	ActorPrincipalID string
	TargetTenantID   string
	Action           string
	Timestamp        time.Time
	Metadata         map[string]string
}
