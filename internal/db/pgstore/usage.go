package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-gate/internal/domain"
)

// UsageRepo implements domain.UsageRepository.
type UsageRepo struct {
	pool *pgxpool.Pool
}

const sumUsageSQL = `
	SELECT COALESCE(SUM(units), 0)::BIGINT FROM usage_records
	WHERE principal_id = $1 AND ts >= $2 AND ts < $3`

// SumBetween returns the units recorded in [since, until).
func (r *UsageRepo) SumBetween(ctx context.Context, principalID string, since, until time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, sumUsageSQL, principalID, since, until).Scan(&total)
	return total, err
}

func prepareRecord(rec *domain.UsageRecord) {
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
}

const insertUsageSQL = `
	INSERT INTO usage_records (id, principal_id, acting_principal_id, operation, ts, units)
	VALUES ($1, $2, $3, $4, $5, $6)`

// Append inserts a usage record.
func (r *UsageRepo) Append(ctx context.Context, rec *domain.UsageRecord) error {
	prepareRecord(rec)
	_, err := r.pool.Exec(ctx, insertUsageSQL,
		rec.ID, rec.PrincipalID, nullableText(rec.ActingPrincipalID), rec.Operation, rec.Timestamp, rec.Units)
	return mapPgError(err)
}

// AppendIfWithinLimit serializes appends per principal with a transaction
// scoped advisory lock, then inserts only when the total stays within limit.
func (r *UsageRepo) AppendIfWithinLimit(ctx context.Context, rec *domain.UsageRecord, since, until time.Time, limit int64) (int64, bool, error) {
	prepareRecord(rec)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin conditional usage append: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.PrincipalID); err != nil {
		return 0, false, err
	}
	var total int64
	if err := tx.QueryRow(ctx, sumUsageSQL, rec.PrincipalID, since, until).Scan(&total); err != nil {
		return 0, false, err
	}
	if total+rec.Units > limit {
		return total, false, nil
	}
	if _, err := tx.Exec(ctx, insertUsageSQL,
		rec.ID, rec.PrincipalID, nullableText(rec.ActingPrincipalID), rec.Operation, rec.Timestamp, rec.Units); err != nil {
		return 0, false, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, mapPgError(err)
	}
	return total + rec.Units, true, nil
}

// AuditRepo implements domain.AuditRepository.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// Insert appends an audit entry.
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
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_entries (id, actor_principal_id, target_tenant_id, action, ts, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ActorPrincipalID, e.TargetTenantID, e.Action, e.Timestamp, raw)
	return mapPgError(err)
}

// List returns matching entries newest first, plus the total match count.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, v string) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.ActorPrincipalID != nil {
		add("actor_principal_id", *filter.ActorPrincipalID)
	}
	if filter.TargetTenantID != nil {
		add("target_tenant_id", *filter.TargetTenantID)
	}
	if filter.Action != nil {
		add("action", *filter.Action)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_principal_id, target_tenant_id, action, ts, metadata FROM audit_entries`+clause+
			fmt.Sprintf(` ORDER BY ts DESC, id DESC LIMIT $%d OFFSET $%d`, n+1, n+2),
		append(args, filter.Page.Limit(), filter.Page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorPrincipalID, &e.TargetTenantID, &e.Action, &e.Timestamp, &raw); err != nil {
			return nil, 0, err
		}
		e.Timestamp = e.Timestamp.UTC()
		if err := json.Unmarshal(raw, &e.Metadata); err != nil {
			return nil, 0, fmt.Errorf("decode audit metadata for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

var (
	_ domain.UsageRepository = (*UsageRepo)(nil)
	_ domain.AuditRepository = (*AuditRepo)(nil)
)
