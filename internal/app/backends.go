package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"tenant-gate/internal/config"
	internaldb "tenant-gate/internal/db"
	"tenant-gate/internal/db/pgstore"
	"tenant-gate/internal/revocation"
)

// sqliteReadConns sizes the SQLite read pool.
const sqliteReadConns = 4

// Backends holds the opened, migrated stores and the optional Redis client.
type Backends struct {
	Stores *Stores
	Redis  redis.UniversalClient // nil unless REDIS_URL is set

	closers []func() error
}

// OpenBackends opens the configured store (PostgreSQL when DATABASE_URL is
// set, SQLite otherwise), applies migrations and connects to Redis when
// REDIS_URL is set. Close releases everything that was opened.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backends{}

	if cfg.UsesPostgres() {
		pool, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		if err := pgstore.Migrate(pool); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		if b.Stores, err = NewStores(pool, nil, nil); err != nil {
			_ = b.Close()
			return nil, err
		}
		logger.Info("store opened", "backend", "postgres")
	} else {
		writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.MetaDBPath, sqliteReadConns)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		b.closers = append(b.closers, readDB.Close, writeDB.Close)
		if err := internaldb.RunMigrations(writeDB, internaldb.DialectSQLite); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		if b.Stores, err = NewStores(nil, writeDB, readDB); err != nil {
			_ = b.Close()
			return nil, err
		}
		logger.Info("store opened", "backend", "sqlite", "path", cfg.MetaDBPath)
	}

	if cfg.RedisURL != "" {
		client, err := revocation.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, client.Close)
		logger.Info("revocation store connected", "backend", "redis")
	}
	return b, nil
}

// Close releases the backends in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
