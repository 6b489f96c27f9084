package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tenant-gate/internal/domain"
)

// SubscriptionRepo implements domain.SubscriptionRepository.
type SubscriptionRepo struct {
	db *sql.DB
}

// NewSubscriptionRepo creates a SubscriptionRepo.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSubscription(ctx context.Context, ex execer, s *domain.Subscription) error {
	if s.ID == "" {
		s.ID = domain.NewID()
	}
	if s.Status == "" {
		s.Status = domain.SubscriptionActive
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO subscriptions (id, principal_id, plan_code, status, period_start, period_end)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.PrincipalID, s.PlanCode, s.Status, toNanos(s.PeriodStart), toNanos(s.PeriodEnd))
	return mapDBError(err)
}

// GetActive returns the principal's active subscription or a NotFoundError.
func (r *SubscriptionRepo) GetActive(ctx context.Context, principalID string) (*domain.Subscription, error) {
	var (
		s          domain.Subscription
		start, end int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, principal_id, plan_code, status, period_start, period_end
		FROM subscriptions
		WHERE principal_id = ? AND status = 'active'`, principalID).
		Scan(&s.ID, &s.PrincipalID, &s.PlanCode, &s.Status, &start, &end)
	if err != nil {
		return nil, mapDBError(err)
	}
	s.PeriodStart = fromNanos(start)
	s.PeriodEnd = fromNanos(end)
	return &s, nil
}

// Replace cancels the principal's active subscription, if any, and activates s.
func (r *SubscriptionRepo) Replace(ctx context.Context, s *domain.Subscription) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace subscription: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = 'canceled' WHERE principal_id = ? AND status = 'active'`,
		s.PrincipalID); err != nil {
		return mapDBError(err)
	}
	s.Status = domain.SubscriptionActive
	if err := insertSubscription(ctx, tx, s); err != nil {
		return err
	}
	return mapDBError(tx.Commit())
}

// Cancel cancels the principal's active subscription. It is a no-op when
// there is none.
func (r *SubscriptionRepo) Cancel(ctx context.Context, principalID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = 'canceled' WHERE principal_id = ? AND status = 'active'`, principalID)
	return mapDBError(err)
}

var _ domain.SubscriptionRepository = (*SubscriptionRepo)(nil)
