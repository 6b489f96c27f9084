package db

import (
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       PoolMode
		wantTxLock bool
	}{
		{name: "write pool locks immediately", mode: PoolWrite, wantTxLock: true},
		{name: "read pool has no txlock", mode: PoolRead, wantTxLock: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dsn := buildDSN("/tmp/gate.sqlite", tt.mode)

			assert.True(t, strings.HasPrefix(dsn, "/tmp/gate.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tt.wantTxLock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "gate.db"), PoolMode("bogus"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite pool mode")
}

func TestOpenSQLitePair_PoolSizes(t *testing.T) {
	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "gate.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, defaultReadConns, readDB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, readDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/gate.db", PoolWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestRunMigrations_CreatesSchema(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	for _, table := range []string{"principals", "tenants", "plans", "subscriptions", "usage_records", "audit_entries"} {
		var name string
		err := writeDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	// Running again is a no-op.
	require.NoError(t, RunMigrations(writeDB, DialectSQLite))
}

func TestRunMigrations_UnknownDialect(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	err := RunMigrations(writeDB, "mysql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported migration dialect")
}
