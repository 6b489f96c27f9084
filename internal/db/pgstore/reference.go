package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-gate/internal/domain"
)

// TenantRepo implements domain.TenantRepository.
type TenantRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a tenant, defaulting id, status and creation time.
func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	out := *t
	if out.ID == "" {
		out.ID = domain.NewID()
	}
	if out.Status == "" {
		out.Status = domain.TenantActive
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, status, created_at) VALUES ($1, $2, $3, $4)`,
		out.ID, out.Name, out.Status, out.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	return &out, nil
}

// GetByID returns a tenant by id, including deleted ones.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.pool.QueryRow(ctx, `SELECT id, name, status, created_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// SetStatus changes a tenant's status.
func (r *TenantRepo) SetStatus(ctx context.Context, id, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("tenant %s not found", id)
	}
	return nil
}

// PlanRepo implements domain.PlanRepository.
type PlanRepo struct {
	pool *pgxpool.Pool
}

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var (
		p     domain.Plan
		limit *int64
	)
	if err := row.Scan(&p.Code, &p.Name, &limit); err != nil {
		return nil, mapPgError(err)
	}
	p.MonthlyUnitLimit = domain.LimitFromPtr(limit)
	return &p, nil
}

// Get returns a plan by code.
func (r *PlanRepo) Get(ctx context.Context, code string) (*domain.Plan, error) {
	return scanPlan(r.pool.QueryRow(ctx, `SELECT code, name, monthly_unit_limit FROM plans WHERE code = $1`, code))
}

// List returns all plans ordered by code.
func (r *PlanRepo) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, monthly_unit_limit FROM plans ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// Upsert creates or replaces a plan.
func (r *PlanRepo) Upsert(ctx context.Context, p *domain.Plan) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO plans (code, name, monthly_unit_limit) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, monthly_unit_limit = EXCLUDED.monthly_unit_limit`,
		p.Code, p.Name, p.MonthlyUnitLimit.Ptr())
	return mapPgError(err)
}

// SubscriptionRepo implements domain.SubscriptionRepository.
type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func insertSubscription(ctx context.Context, tx pgx.Tx, s *domain.Subscription) error {
	if s.ID == "" {
		s.ID = domain.NewID()
	}
	if s.Status == "" {
		s.Status = domain.SubscriptionActive
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (id, principal_id, plan_code, status, period_start, period_end)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.PrincipalID, s.PlanCode, s.Status, s.PeriodStart, s.PeriodEnd)
	return mapPgError(err)
}

// GetActive returns the principal's active subscription or a NotFoundError.
func (r *SubscriptionRepo) GetActive(ctx context.Context, principalID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := r.pool.QueryRow(ctx, `
		SELECT id, principal_id, plan_code, status, period_start, period_end
		FROM subscriptions WHERE principal_id = $1 AND status = 'active'`, principalID).
		Scan(&s.ID, &s.PrincipalID, &s.PlanCode, &s.Status, &s.PeriodStart, &s.PeriodEnd)
	if err != nil {
		return nil, mapPgError(err)
	}
	s.PeriodStart = s.PeriodStart.UTC()
	s.PeriodEnd = s.PeriodEnd.UTC()
	return &s, nil
}

// Replace cancels the active subscription, if any, and activates s.
func (r *SubscriptionRepo) Replace(ctx context.Context, s *domain.Subscription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace subscription: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx,
		`UPDATE subscriptions SET status = 'canceled' WHERE principal_id = $1 AND status = 'active'`,
		s.PrincipalID); err != nil {
		return mapPgError(err)
	}
	s.Status = domain.SubscriptionActive
	if err := insertSubscription(ctx, tx, s); err != nil {
		return err
	}
	return mapPgError(tx.Commit(ctx))
}

// Cancel cancels the principal's active subscription. It is a no-op when
// there is none.
func (r *SubscriptionRepo) Cancel(ctx context.Context, principalID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET status = 'canceled' WHERE principal_id = $1 AND status = 'active'`, principalID)
	return mapPgError(err)
}

var (
	_ domain.TenantRepository       = (*TenantRepo)(nil)
	_ domain.PlanRepository         = (*PlanRepo)(nil)
	_ domain.SubscriptionRepository = (*SubscriptionRepo)(nil)
)
