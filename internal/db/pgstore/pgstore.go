// Package pgstore implements the gate's domain repositories on PostgreSQL
// using pgx. It mirrors internal/db/repository, which serves SQLite.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	internaldb "tenant-gate/internal/db"
	"tenant-gate/internal/domain"
)

const uniqueViolation = "23505"

var (
	connectRetries = 10
	retryDelay     = 2 * time.Second
	pingTimeout    = 2 * time.Second
)

// Store bundles the PostgreSQL repositories over one pool.
type Store struct {
	Pool          *pgxpool.Pool
	Principals    *PrincipalRepo
	Tenants       *TenantRepo
	Plans         *PlanRepo
	Subscriptions *SubscriptionRepo
	Usage         *UsageRepo
	Audit         *AuditRepo
}

// New builds a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Pool:          pool,
		Principals:    &PrincipalRepo{pool: pool},
		Tenants:       &TenantRepo{pool: pool},
		Plans:         &PlanRepo{pool: pool},
		Subscriptions: &SubscriptionRepo{pool: pool},
		Usage:         &UsageRepo{pool: pool},
		Audit:         &AuditRepo{pool: pool},
	}
}

// Open connects to dsn, retrying while the server comes up.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for i := 0; i < connectRetries; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			lastErr = err
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				return pool, nil
			}
			lastErr = err
			pool.Close()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("postgres ping retries exhausted: %w", lastErr)
}

// Migrate applies the embedded postgres migrations through a database/sql
// handle borrowed from the pool.
func Migrate(pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	return internaldb.RunMigrations(sqlDB, internaldb.DialectPostgres)
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &domain.ConflictError{Message: "resource already exists"}
	}
	return err
}

func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
