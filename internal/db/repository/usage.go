package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tenant-gate/internal/domain"
)

// UsageRepo implements domain.UsageRepository.
type UsageRepo struct {
	db *sql.DB
}

// NewUsageRepo creates a UsageRepo. AppendIfWithinLimit is only atomic when
// db is the single-connection write pool.
func NewUsageRepo(db *sql.DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sumBetween(ctx context.Context, q queryer, principalID string, since, until time.Time) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(units), 0) FROM usage_records
		WHERE principal_id = ? AND ts >= ? AND ts < ?`,
		principalID, toNanos(since), toNanos(until)).Scan(&total)
	return total, err
}

func prepareRecord(r *domain.UsageRecord) {
	if r.ID == "" {
		r.ID = domain.NewID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
}

// SumBetween returns the units recorded for principalID in [since, until).
func (r *UsageRepo) SumBetween(ctx context.Context, principalID string, since, until time.Time) (int64, error) {
	return sumBetween(ctx, r.db, principalID, since, until)
}

// Append inserts a usage record.
func (r *UsageRepo) Append(ctx context.Context, rec *domain.UsageRecord) error {
	prepareRecord(rec)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, principal_id, acting_principal_id, operation, ts, units)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PrincipalID, nullString(rec.ActingPrincipalID), rec.Operation, toNanos(rec.Timestamp), rec.Units)
	return mapDBError(err)
}

// AppendIfWithinLimit inserts rec only when the period total plus rec.Units
// stays within limit. The conditional insert and the total are read in one
// immediate transaction.
func (r *UsageRepo) AppendIfWithinLimit(ctx context.Context, rec *domain.UsageRecord, since, until time.Time, limit int64) (int64, bool, error) {
	prepareRecord(rec)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin conditional usage append: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (id, principal_id, acting_principal_id, operation, ts, units)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE (SELECT COALESCE(SUM(units), 0) FROM usage_records
		       WHERE principal_id = ? AND ts >= ? AND ts < ?) + ? <= ?`,
		rec.ID, rec.PrincipalID, nullString(rec.ActingPrincipalID), rec.Operation, toNanos(rec.Timestamp), rec.Units,
		rec.PrincipalID, toNanos(since), toNanos(until), rec.Units, limit)
	if err != nil {
		return 0, false, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	total, err := sumBetween(ctx, tx, rec.PrincipalID, since, until)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, mapDBError(err)
	}
	return total, n == 1, nil
}

var _ domain.UsageRepository = (*UsageRepo)(nil)
