package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-gate/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestBuild(t *testing.T) {
	exp := time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC)
	member := &domain.Principal{ID: "p-1", TenantID: strPtr("t-home"), Role: domain.RoleOwner}
	operator := &domain.Principal{ID: "op-1", Role: domain.RolePlatformOperator}

	tests := []struct {
		name          string
		claims        *domain.Claims
		principal     *domain.Principal
		wantTenant    string
		wantRole      string
		wantActing    string
		wantImp       bool
		wantAuthzCode domain.AuthorizationErrorCode
	}{
		{
			name:       "plain session uses principal scope",
			claims:     &domain.Claims{SubjectID: "idp|p1", TenantID: "t-claimed", ExpiresAt: exp},
			principal:  member,
			wantTenant: "t-home",
			wantRole:   domain.RoleOwner,
		},
		{
			name:       "platform principal without tenant",
			claims:     &domain.Claims{SubjectID: "idp|op"},
			principal:  operator,
			wantTenant: "",
			wantRole:   domain.RolePlatformOperator,
		},
		{
			name: "impersonating uses credential scope",
			claims: &domain.Claims{
				SubjectID: "idp|op", Impersonating: true, ActingAs: "op-1",
				TenantID: "t-target", TenantRole: domain.RoleAdmin, CredentialID: "jti-1", ExpiresAt: exp,
			},
			principal:  operator,
			wantTenant: "t-target",
			wantRole:   domain.RoleAdmin,
			wantActing: "op-1",
			wantImp:    true,
		},
		{
			name: "platform role in credential is downgraded",
			claims: &domain.Claims{
				SubjectID: "idp|op", Impersonating: true, ActingAs: "op-1",
				TenantID: "t-target", TenantRole: domain.RolePlatformAdmin,
			},
			principal:  operator,
			wantTenant: "t-target",
			wantRole:   domain.RoleMember,
			wantActing: "op-1",
			wantImp:    true,
		},
		{
			name: "credential issued to someone else",
			claims: &domain.Claims{
				SubjectID: "idp|op", Impersonating: true, ActingAs: "op-2", TenantID: "t-target",
			},
			principal:     operator,
			wantAuthzCode: domain.AuthorizationNotAuthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess, err := Build(tt.claims, tt.principal)
			if tt.wantAuthzCode != "" {
				var aerr *domain.AuthorizationError
				require.ErrorAs(t, err, &aerr)
				assert.Equal(t, tt.wantAuthzCode, aerr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, sess.TenantID)
			assert.Equal(t, tt.wantRole, sess.Role)
			assert.Equal(t, tt.wantActing, sess.ActingPrincipalID)
			assert.Equal(t, tt.wantImp, sess.Impersonating)
			assert.Equal(t, tt.principal.ID, sess.Principal.ID)
			assert.False(t, domain.IsPlatformRole(sess.Role) && sess.Impersonating)
		})
	}
}

func TestBuild_AuditActorDuringImpersonation(t *testing.T) {
	t.Parallel()
	operator := &domain.Principal{ID: "op-1", Role: domain.RolePlatformAdmin}
	sess, err := Build(&domain.Claims{
		SubjectID: "idp|op", Impersonating: true, ActingAs: "op-1", TenantID: "t-9", CredentialID: "jti-9",
	}, operator)
	require.NoError(t, err)
	assert.Equal(t, "op-1", sess.AuditActorID())
	assert.Equal(t, "jti-9", sess.ImpersonationID)
}

func TestBuild_DoesNotAliasPrincipal(t *testing.T) {
	t.Parallel()
	p := &domain.Principal{ID: "p-1", Role: domain.RoleMember, TenantID: strPtr("t-1")}
	sess, err := Build(&domain.Claims{SubjectID: "idp|p1"}, p)
	require.NoError(t, err)

	sess.Principal.Role = domain.RoleOwner
	assert.Equal(t, domain.RoleMember, p.Role)
}

func TestBuild_NilInputs(t *testing.T) {
	t.Parallel()
	_, err := Build(nil, &domain.Principal{})
	assert.Error(t, err)
	_, err = Build(&domain.Claims{}, nil)
	assert.Error(t, err)
}
