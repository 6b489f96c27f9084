package domain

import "time"

// Role names. Platform roles act across tenants; tenant roles are scoped to a
// single tenant.
const (
	RolePlatformAdmin    = "platform_admin"
	RolePlatformOperator = "platform_operator"

	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IsPlatformRole reports whether role grants platform-level (cross-tenant) access.
func IsPlatformRole(role string) bool {
	return role == RolePlatformAdmin || role == RolePlatformOperator
}

// IsTenantRole reports whether role is scoped to a single tenant.
func IsTenantRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Principal is the platform's durable representation of an authenticated identity.
type Principal struct {
	ID                 string
	ExternalIdentityID string // IdP subject identifier (JWT `sub` claim)
	Email              string
	DisplayName        string
	TenantID           *string
	Role               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TenantIDValue returns the principal's tenant id or "" when it has none.
func (p *Principal) TenantIDValue() string {
	if p == nil || p.TenantID == nil {
		return ""
	}
	return *p.TenantID
}

// UpdateProfileRequest holds the only mutable principal fields.
type UpdateProfileRequest struct {
	PrincipalID string
	Email       string
	DisplayName string
}

// Validate checks that the request is well-formed.
func (r *UpdateProfileRequest) Validate() error {
	if r.PrincipalID == "" {
		return ErrValidation("principal_id is required")
	}
	if r.Email == "" && r.DisplayName == "" {
		return ErrValidation("email or display_name is required")
	}
	return nil
}
