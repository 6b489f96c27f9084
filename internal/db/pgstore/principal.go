package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-gate/internal/domain"
)

const principalColumns = `id, external_identity_id, email, display_name, tenant_id, role, created_at, updated_at`

// PrincipalRepo implements domain.PrincipalRepository.
type PrincipalRepo struct {
	pool *pgxpool.Pool
}

func scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var p domain.Principal
	if err := row.Scan(&p.ID, &p.ExternalIdentityID, &p.Email, &p.DisplayName, &p.TenantID, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// GetByExternalID returns the principal owning an IdP subject identifier.
func (r *PrincipalRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Principal, error) {
	return scanPrincipal(r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE external_identity_id = $1`, externalID))
}

// GetByID returns a principal by id.
func (r *PrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return scanPrincipal(r.pool.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id))
}

// Create inserts the principal and its optional initial subscription in one
// transaction.
func (r *PrincipalRepo) Create(ctx context.Context, p *domain.Principal, initial *domain.Subscription) (*domain.Principal, error) {
	out := *p
	if out.ID == "" {
		out.ID = domain.NewID()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	out.UpdatedAt = out.CreatedAt

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create principal: %w", err)
	}
	defer rollback(ctx, tx)

	_, err = tx.Exec(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		out.ID, out.ExternalIdentityID, out.Email, out.DisplayName, out.TenantID, out.Role, out.CreatedAt, out.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	if initial != nil {
		sub := *initial
		sub.PrincipalID = out.ID
		if err := insertSubscription(ctx, tx, &sub); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return &out, nil
}

// UpdateProfile changes email and/or display name; empty fields are kept.
func (r *PrincipalRepo) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.Principal, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE principals
		SET email = COALESCE(NULLIF($1, ''), email),
		    display_name = COALESCE(NULLIF($2, ''), display_name),
		    updated_at = $3
		WHERE id = $4
		RETURNING `+principalColumns,
		req.Email, req.DisplayName, time.Now().UTC(), req.PrincipalID)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetRole assigns role and tenant membership. Platform roles carry no tenant.
func (r *PrincipalRepo) SetRole(ctx context.Context, id, role string, tenantID *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE principals SET role = $1, tenant_id = $2, updated_at = $3 WHERE id = $4`,
		role, tenantID, time.Now().UTC(), id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("principal %s not found", id)
	}
	return nil
}

var _ domain.PrincipalRepository = (*PrincipalRepo)(nil)
