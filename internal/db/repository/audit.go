package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tenant-gate/internal/domain"
)

// AuditRepo implements domain.AuditRepository.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert appends an audit entry. Id and timestamp are filled in when unset.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, actor_principal_id, target_tenant_id, action, ts, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorPrincipalID, e.TargetTenantID, e.Action, toNanos(e.Timestamp), string(raw))
	return mapDBError(err)
}

// List returns matching entries newest first, plus the total match count.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	var (
		where []string
		args  []any
	)
	if filter.ActorPrincipalID != nil {
		where = append(where, "actor_principal_id = ?")
		args = append(args, *filter.ActorPrincipalID)
	}
	if filter.TargetTenantID != nil {
		where = append(where, "target_tenant_id = ?")
		args = append(args, *filter.TargetTenantID)
	}
	if filter.Action != nil {
		where = append(where, "action = ?")
		args = append(args, *filter.Action)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, actor_principal_id, target_tenant_id, action, ts, metadata FROM audit_entries`+clause+
			` ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, filter.Page.Limit(), filter.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e   domain.AuditEntry
			ts  int64
			raw string
		)
		if err := rows.Scan(&e.ID, &e.ActorPrincipalID, &e.TargetTenantID, &e.Action, &ts, &raw); err != nil {
			return nil, 0, err
		}
		e.Timestamp = fromNanos(ts)
		if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
			return nil, 0, fmt.Errorf("decode audit metadata for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

var _ domain.AuditRepository = (*AuditRepo)(nil)
