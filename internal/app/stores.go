package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-gate/internal/db/pgstore"
	"tenant-gate/internal/db/repository"
	"tenant-gate/internal/domain"
)

// PrincipalStore extends the principal repository with role assignment,
// which only gatectl performs.
type PrincipalStore interface {
	domain.PrincipalRepository
	SetRole(ctx context.Context, id, role string, tenantID *string) error
}

// TenantStore extends the tenant repository with the admin operations used
// by gatectl.
type TenantStore interface {
	domain.TenantRepository
	SetStatus(ctx context.Context, id, status string) error
}

// SubscriptionStore extends the subscription repository with the admin
// operations used by gatectl.
type SubscriptionStore interface {
	domain.SubscriptionRepository
	Replace(ctx context.Context, s *domain.Subscription) error
	Cancel(ctx context.Context, principalID string) error
}

// Stores groups the repositories of one backend.
type Stores struct {
	Principals    PrincipalStore
	Tenants       TenantStore
	Plans         domain.PlanRepository
	Subscriptions SubscriptionStore
	Usage         domain.UsageRepository
	Audit         domain.AuditRepository
	// AuditReader serves audit listings. On SQLite it runs on the read pool.
	AuditReader domain.AuditRepository
}

// NewStores builds the repositories for the configured backend. A non-nil
// pool selects PostgreSQL; otherwise writeDB and readDB must be SQLite
// handles from internaldb.OpenSQLitePair.
func NewStores(pool *pgxpool.Pool, writeDB, readDB *sql.DB) (*Stores, error) {
	if pool != nil {
		s := pgstore.New(pool)
		return &Stores{
			Principals:    s.Principals,
			Tenants:       s.Tenants,
			Plans:         s.Plans,
			Subscriptions: s.Subscriptions,
			Usage:         s.Usage,
			Audit:         s.Audit,
			AuditReader:   s.Audit,
		}, nil
	}
	if writeDB == nil {
		return nil, fmt.Errorf("no store configured: need a postgres pool or a sqlite handle")
	}
	if readDB == nil {
		readDB = writeDB
	}
	return &Stores{
		Principals:    repository.NewPrincipalRepo(writeDB),
		Tenants:       repository.NewTenantRepo(writeDB),
		Plans:         repository.NewPlanRepo(writeDB),
		Subscriptions: repository.NewSubscriptionRepo(writeDB),
		Usage:         repository.NewUsageRepo(writeDB),
		Audit:         repository.NewAuditRepo(writeDB),
		AuditReader:   repository.NewAuditRepo(readDB),
	}, nil
}
