package domain

import "time"

// Tenant statuses.
const (
	TenantActive    = "active"
	TenantSuspended = "suspended"
	TenantDeleted   = "deleted"
)

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        string
	Name      string
	Status    string
	CreatedAt time.Time
}

// PermitsAccess reports whether operators may act inside the tenant.
// Suspended tenants stay reachable so support can investigate them.
func (t *Tenant) PermitsAccess() bool {
	return t.Status == TenantActive || t.Status == TenantSuspended
}

// CreateTenantRequest holds parameters for creating a tenant.
type CreateTenantRequest struct {
	ID   string
	Name string
}

// Validate checks that the request is well-formed.
func (r *CreateTenantRequest) Validate() error {
	if r.Name == "" {
		return ErrValidation("tenant name is required")
	}
	return nil
}
