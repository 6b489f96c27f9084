package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tenant-gate/internal/domain"
)

const principalColumns = `id, external_identity_id, email, display_name, tenant_id, role, created_at, updated_at`

// PrincipalRepo implements domain.PrincipalRepository.
type PrincipalRepo struct {
	db *sql.DB
}

// NewPrincipalRepo creates a PrincipalRepo.
func NewPrincipalRepo(db *sql.DB) *PrincipalRepo {
	return &PrincipalRepo{db: db}
}

func scanPrincipal(row rowScanner) (*domain.Principal, error) {
	var (
		p                  domain.Principal
		tenantID           sql.NullString
		createdAt, updated int64
	)
	if err := row.Scan(&p.ID, &p.ExternalIdentityID, &p.Email, &p.DisplayName, &tenantID, &p.Role, &createdAt, &updated); err != nil {
		return nil, err
	}
	if tenantID.Valid {
		p.TenantID = &tenantID.String
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// GetByExternalID returns the principal owning an IdP subject identifier.
func (r *PrincipalRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE external_identity_id = ?`, externalID)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

// GetByID returns a principal by its id.
func (r *PrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

// Create inserts the principal and, when initial is non-nil, its first
// subscription in one transaction. A duplicate external identity id yields a
// ConflictError and nothing is written.
func (r *PrincipalRepo) Create(ctx context.Context, p *domain.Principal, initial *domain.Subscription) (*domain.Principal, error) {
	out := *p
	if out.ID == "" {
		out.ID = domain.NewID()
	}
	now := time.Now().UTC()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = out.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create principal: %w", err)
	}
	defer rollback(tx)

	var tenantID sql.NullString
	if out.TenantID != nil {
		tenantID = nullString(*out.TenantID)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.ExternalIdentityID, out.Email, out.DisplayName, tenantID, out.Role,
		toNanos(out.CreatedAt), toNanos(out.UpdatedAt))
	if err != nil {
		return nil, mapDBError(err)
	}

	if initial != nil {
		sub := *initial
		sub.PrincipalID = out.ID
		if err := insertSubscription(ctx, tx, &sub); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapDBError(err)
	}
	return &out, nil
}

// UpdateProfile changes the email and/or display name. Empty fields are left
// unchanged.
func (r *PrincipalRepo) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.Principal, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE principals
		SET email = CASE WHEN ? = '' THEN email ELSE ? END,
		    display_name = CASE WHEN ? = '' THEN display_name ELSE ? END,
		    updated_at = ?
		WHERE id = ?`,
		req.Email, req.Email, req.DisplayName, req.DisplayName, toNanos(time.Now()), req.PrincipalID)
	if err != nil {
		return nil, mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNotFound("principal %s not found", req.PrincipalID)
	}
	return r.GetByID(ctx, req.PrincipalID)
}

// SetRole assigns role and tenant membership. Platform roles carry no tenant.
func (r *PrincipalRepo) SetRole(ctx context.Context, id, role string, tenantID *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE principals SET role = ?, tenant_id = ?, updated_at = ? WHERE id = ?`,
		role, tenantID, toNanos(time.Now()), id)
	if err != nil {
		return mapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("principal %s not found", id)
	}
	return nil
}

var _ domain.PrincipalRepository = (*PrincipalRepo)(nil)
