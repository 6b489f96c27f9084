package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-gate/internal/domain"
)

func TestAuditService_List(t *testing.T) {
	t.Run("happy_path", func(t *testing.T) {
		expected := []domain.AuditEntry{
			{ID: "ae-2", ActorPrincipalID: "op-1", TargetTenantID: "t-1", Action: domain.ActionImpersonationEnd, Timestamp: time.Now()},
			{ID: "ae-1", ActorPrincipalID: "op-1", TargetTenantID: "t-1", Action: domain.ActionImpersonationStart, Timestamp: time.Now()},
		}
		repo := &mockAuditRepo{
			ListFn: func(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				return expected, 2, nil
			},
		}
		svc := NewAuditService(repo, nil)

		entries, total, err := svc.List(adminCtx(), domain.AuditFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, "ae-2", entries[0].ID)
	})

	t.Run("with_filters", func(t *testing.T) {
		tenant := "t-1"
		action := domain.ActionImpersonationStart
		repo := &mockAuditRepo{
			ListFn: func(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				assert.Equal(t, &tenant, filter.TargetTenantID)
				assert.Equal(t, &action, filter.Action)
				assert.Nil(t, filter.ActorPrincipalID)
				return []domain.AuditEntry{{ID: "ae-1", TargetTenantID: tenant, Action: action}}, 1, nil
			},
		}
		svc := NewAuditService(repo, nil)

		entries, total, err := svc.List(sessionCtx(domain.RolePlatformOperator, false), domain.AuditFilter{
			TargetTenantID: strPtr(tenant),
			Action:         strPtr(action),
		})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, int64(1), total)
	})

	t.Run("empty_result", func(t *testing.T) {
		repo := &mockAuditRepo{
			ListFn: func(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				return []domain.AuditEntry{}, 0, nil
			},
		}
		svc := NewAuditService(repo, nil)

		entries, total, err := svc.List(adminCtx(), domain.AuditFilter{})
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Equal(t, int64(0), total)
	})

	t.Run("repo_error", func(t *testing.T) {
		repo := &mockAuditRepo{
			ListFn: func(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				return nil, 0, errTest
			},
		}
		svc := NewAuditService(repo, nil)

		_, _, err := svc.List(adminCtx(), domain.AuditFilter{})
		require.Error(t, err)
		assert.ErrorIs(t, err, errTest)
		var serr *domain.StoreError
		assert.ErrorAs(t, err, &serr)
	})
}

func TestAuditService_List_RequiresPlatformRole(t *testing.T) {
	repo := &mockAuditRepo{} // any List call panics

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"unauthenticated", context.Background()},
		{"tenant owner", sessionCtx(domain.RoleOwner, false)},
		// An operator impersonating a tenant acts with the tenant role only.
		{"impersonating operator", sessionCtx(domain.RoleAdmin, true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuditService(repo, nil)
			_, _, err := svc.List(tt.ctx, domain.AuditFilter{})
			var accessDenied *domain.AccessDeniedError
			assert.ErrorAs(t, err, &accessDenied)
		})
	}
}
