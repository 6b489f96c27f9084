package domain

import "time"

// Claims is the verified, ephemeral payload of a bearer credential. It is
// never persisted; it feeds principal resolution and session construction.
// Optional string fields are empty when the credential does not carry them.
type Claims struct {
	SubjectID     string
	Email         string
	DisplayName   string
	Issuer        string
	TenantID      string
	TenantRole    string
	ActingAs      string // operator principal id, only on impersonating credentials
	Impersonating bool
	CredentialID  string // `jti`
	ExpiresAt     time.Time
}

// Validate enforces the claim-shape invariants: an impersonating credential
// names both the operator and the target tenant, and a non-impersonating one
// never names an operator.
func (c *Claims) Validate() error {
	if c.SubjectID == "" {
		return ErrValidation("credential has no subject")
	}
	if c.Impersonating {
		if c.ActingAs == "" {
			return ErrValidation("impersonating credential must carry an acting principal")
		}
		if c.TenantID == "" {
			return ErrValidation("impersonating credential must carry a target tenant")
		}
		return nil
	}
	if c.ActingAs != "" {
		return ErrValidation("non-impersonating credential must not carry an acting principal")
	}
	return nil
}
