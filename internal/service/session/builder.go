// Package session derives the per-request SessionContext from verified
// claims and the resolved principal.
package session

import (
	"tenant-gate/internal/domain"
)

// Build derives the effective tenant, role and acting identity. It performs
// no I/O and never mutates its inputs.
//
// While impersonating, the effective role comes from the credential's tenant
// role and is never a platform role; the principal is the operator the
// credential was issued to.
func Build(claims *domain.Claims, p *domain.Principal) (domain.SessionContext, error) {
	if claims == nil || p == nil {
		return domain.SessionContext{}, domain.ErrValidation("claims and principal are required")
	}

	sess := domain.SessionContext{
		Principal: *p,
		ExpiresAt: claims.ExpiresAt,
	}

	if !claims.Impersonating {
		sess.TenantID = p.TenantIDValue()
		sess.Role = p.Role
		return sess, nil
	}

	if claims.ActingAs != p.ID {
		return domain.SessionContext{}, domain.ErrAuthorization(domain.AuthorizationNotAuthorized,
			"elevated credential was not issued to principal %s", p.ID)
	}
	role := claims.TenantRole
	if !domain.IsTenantRole(role) {
		role = domain.RoleMember
	}
	sess.TenantID = claims.TenantID
	sess.Role = role
	sess.Impersonating = true
	sess.ActingPrincipalID = p.ID
	sess.ImpersonationID = claims.CredentialID
	return sess, nil
}
