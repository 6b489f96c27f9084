package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "tenant-gate/internal/db"
	"tenant-gate/internal/domain"
)

func TestTenantRepo_CreateGetSetStatus(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewTenantRepo(writeDB)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Tenant{Name: "Acme"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.TenantActive, created.Status)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.True(t, got.PermitsAccess())

	require.NoError(t, repo.SetStatus(ctx, created.ID, domain.TenantDeleted))
	got, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.PermitsAccess())

	err = repo.SetStatus(ctx, "missing", domain.TenantSuspended)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTenantRepo_RejectsUnknownStatus(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewTenantRepo(writeDB)

	_, err := repo.Create(context.Background(), &domain.Tenant{Name: "Bad", Status: "archived"})
	require.Error(t, err)
}

func TestTenantRepo_DuplicateID(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewTenantRepo(writeDB)
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.Tenant{ID: "t-1", Name: "One"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.Tenant{ID: "t-1", Name: "Again"})
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
