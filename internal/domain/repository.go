package domain

import (
	"context"
	"time"
)

// PrincipalRepository persists principals. Create stores the principal and its
// initial subscription atomically and returns a ConflictError when the
// external identity id is already taken.
type PrincipalRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*Principal, error)
	GetByID(ctx context.Context, id string) (*Principal, error)
	Create(ctx context.Context, p *Principal, initial *Subscription) (*Principal, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*Principal, error)
}

// TenantRepository persists tenants.
type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) (*Tenant, error)
	GetByID(ctx context.Context, id string) (*Tenant, error)
}

// PlanRepository provides read access to plan reference data, plus Upsert for seeding.
type PlanRepository interface {
	Get(ctx context.Context, code string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Upsert(ctx context.Context, p *Plan) error
}

// SubscriptionRepository resolves a principal's active subscription.
// GetActive returns a NotFoundError when there is none.
type SubscriptionRepository interface {
	GetActive(ctx context.Context, principalID string) (*Subscription, error)
}

// UsageRepository provides append-only access to usage records.
type UsageRepository interface {
	// SumBetween returns the units recorded in [since, until).
	SumBetween(ctx context.Context, principalID string, since, until time.Time) (int64, error)
	Append(ctx context.Context, r *UsageRecord) error
	// AppendIfWithinLimit appends r only if the units already recorded in
	// [since, until) plus r.Units stay within limit. It returns the total
	// after the call and whether r was appended, in a single round trip.
	AppendIfWithinLimit(ctx context.Context, r *UsageRecord, since, until time.Time, limit int64) (int64, bool, error)
}

// AuditFilter holds filter parameters for querying audit entries.
type AuditFilter struct {
	ActorPrincipalID *string
	TargetTenantID   *string
	Action           *string
	Page             PageRequest
}

// AuditRepository provides append-only access to audit entries.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}
