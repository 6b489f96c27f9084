package repository

import (
	"context"
	"database/sql"
	"time"

	"tenant-gate/internal/domain"
)

// TenantRepo implements domain.TenantRepository.
type TenantRepo struct {
	db *sql.DB
}

// NewTenantRepo creates a TenantRepo.
func NewTenantRepo(db *sql.DB) *TenantRepo {
	return &TenantRepo{db: db}
}

// Create inserts a tenant. Missing id, status and creation time are filled in.
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
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, status, created_at) VALUES (?, ?, ?, ?)`,
		out.ID, out.Name, out.Status, toNanos(out.CreatedAt))
	if err != nil {
		return nil, mapDBError(err)
	}
	return &out, nil
}

// GetByID returns a tenant by id, including deleted ones.
func (r *TenantRepo) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var (
		t         domain.Tenant
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at FROM tenants WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Status, &createdAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	t.CreatedAt = fromNanos(createdAt)
	return &t, nil
}

// SetStatus changes a tenant's status.
func (r *TenantRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tenants SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("tenant %s not found", id)
	}
	return nil
}

var _ domain.TenantRepository = (*TenantRepo)(nil)
