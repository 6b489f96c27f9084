package repository

import (
	"context"
	"database/sql"

	"tenant-gate/internal/domain"
)

// PlanRepo implements domain.PlanRepository.
type PlanRepo struct {
	db *sql.DB
}

// NewPlanRepo creates a PlanRepo.
func NewPlanRepo(db *sql.DB) *PlanRepo {
	return &PlanRepo{db: db}
}

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var (
		p     domain.Plan
		limit sql.NullInt64
	)
	if err := row.Scan(&p.Code, &p.Name, &limit); err != nil {
		return nil, err
	}
	if limit.Valid {
		p.MonthlyUnitLimit = domain.Limited(limit.Int64)
	} else {
		p.MonthlyUnitLimit = domain.Unlimited()
	}
	return &p, nil
}

// Get returns the plan with the given code.
func (r *PlanRepo) Get(ctx context.Context, code string) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx,
		`SELECT code, name, monthly_unit_limit FROM plans WHERE code = ?`, code))
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

// List returns all plans ordered by code.
func (r *PlanRepo) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name, monthly_unit_limit FROM plans ORDER BY code`)
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

// Upsert inserts or replaces a plan definition.
func (r *PlanRepo) Upsert(ctx context.Context, p *domain.Plan) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plans (code, name, monthly_unit_limit) VALUES (?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name, monthly_unit_limit = excluded.monthly_unit_limit`,
		p.Code, p.Name, nullInt64(p.MonthlyUnitLimit.Ptr()))
	return mapDBError(err)
}

var _ domain.PlanRepository = (*PlanRepo)(nil)
