// Package identity maps verified credentials onto durable principals,
// provisioning them on first sight.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tenant-gate/internal/domain"
)

// DefaultPlanCode is the plan assigned to newly provisioned principals.
const DefaultPlanCode = "free"

// Config configures a Resolver.
type Config struct {
	DefaultPlan string
	// BootstrapAdmin is an external identity id provisioned as platform_admin.
	BootstrapAdmin string
}

// Resolver implements principal resolution.
type Resolver struct {
	principals domain.PrincipalRepository
	plans      domain.PlanRepository
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(principals domain.PrincipalRepository, plans domain.PlanRepository, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.DefaultPlan == "" {
		cfg.DefaultPlan = DefaultPlanCode
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		principals: principals,
		plans:      plans,
		cfg:        cfg,
		logger:     logger.With("component", "resolver"),
		now:        time.Now,
	}
}

// Resolve returns the principal owning claims.SubjectID. An existing
// principal is returned unchanged; an unknown subject is provisioned with the
// default plan. Storage failures are returned as *domain.StoreError.
func (r *Resolver) Resolve(ctx context.Context, claims *domain.Claims) (*domain.Principal, error) {
	p, err := r.principals.GetByExternalID(ctx, claims.SubjectID)
	if err == nil {
		return p, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, &domain.StoreError{Op: "lookup principal", Err: err}
	}
	return r.provision(ctx, claims)
}

func (r *Resolver) provision(ctx context.Context, claims *domain.Claims) (*domain.Principal, error) {
	plan, err := r.plans.Get(ctx, r.cfg.DefaultPlan)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, domain.ErrReferenceDataMissing("default plan %q does not exist", r.cfg.DefaultPlan)
		}
		return nil, &domain.StoreError{Op: "load default plan", Err: err}
	}

	now := r.now().UTC()
	candidate := &domain.Principal{
		ExternalIdentityID: claims.SubjectID,
		Email:              claims.Email,
		DisplayName:        claims.DisplayName,
		Role:               domain.RoleMember,
		CreatedAt:          now,
	}
	switch {
	case r.cfg.BootstrapAdmin != "" && claims.SubjectID == r.cfg.BootstrapAdmin:
		candidate.Role = domain.RolePlatformAdmin
	case !claims.Impersonating && claims.TenantID != "":
		tenantID := claims.TenantID
		candidate.TenantID = &tenantID
	}
	sub := &domain.Subscription{
		PlanCode:    plan.Code,
		Status:      domain.SubscriptionActive,
		PeriodStart: now,
		PeriodEnd:   domain.AddMonths(now, 1),
	}

	created, err := r.principals.Create(ctx, candidate, sub)
	if err == nil {
		r.logger.Info("principal provisioned",
			"principal_id", created.ID, "role", created.Role, "plan", plan.Code)
		return created, nil
	}

	// A concurrent first request for the same subject won the insert.
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		existing, getErr := r.principals.GetByExternalID(ctx, claims.SubjectID)
		if getErr != nil {
			return nil, &domain.StoreError{Op: "reload principal after conflict", Err: getErr}
		}
		return existing, nil
	}
	return nil, &domain.StoreError{Op: "create principal", Err: err}
}

// UpdateProfile changes a principal's email and/or display name. It is the
// only path that mutates them.
func (r *Resolver) UpdateProfile(ctx context.Context, principalID, email, displayName string) (*domain.Principal, error) {
	req := domain.UpdateProfileRequest{PrincipalID: principalID, Email: email, DisplayName: displayName}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return r.principals.UpdateProfile(ctx, req)
}
