// Package credential verifies bearer credentials and issues the gate's own
// short-lived elevated credentials.
package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tenant-gate/internal/domain"
)

// actor is the RFC 8693 "act" claim.
type actor struct {
	Sub string `json:"sub"`
}

// tokenClaims is the JWT payload understood by the gate.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
	TenantRole    string `json:"tenant_role,omitempty"`
	Impersonating bool   `json:"imp,omitempty"`
	Act           *actor `json:"act,omitempty"`
}

func (c *tokenClaims) toDomain() *domain.Claims {
	out := &domain.Claims{
		SubjectID:     c.Subject,
		Email:         c.Email,
		DisplayName:   c.Name,
		Issuer:        c.Issuer,
		TenantID:      c.TenantID,
		TenantRole:    c.TenantRole,
		Impersonating: c.Impersonating,
		CredentialID:  c.ID,
	}
	if c.Act != nil {
		out.ActingAs = c.Act.Sub
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out
}

func fromDomain(c domain.Claims, issuer string, issuedAt time.Time) *tokenClaims {
	tc := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.SubjectID,
			Issuer:    issuer,
			ID:        c.CredentialID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		Email:         c.Email,
		Name:          c.DisplayName,
		TenantID:      c.TenantID,
		TenantRole:    c.TenantRole,
		Impersonating: c.Impersonating,
	}
	if c.ActingAs != "" {
		tc.Act = &actor{Sub: c.ActingAs}
	}
	return tc
}
