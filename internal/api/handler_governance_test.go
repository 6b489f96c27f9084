package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-gate/internal/domain"
)

var govFixedTime = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func govRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	sess := domain.SessionContext{
		Principal: domain.Principal{ID: "p-admin", Role: domain.RolePlatformAdmin},
		Role:      domain.RolePlatformAdmin,
	}
	return req.WithContext(domain.WithSession(req.Context(), sess))
}

func TestListAuditLogs(t *testing.T) {
	t.Parallel()

	entries := []domain.AuditEntry{
		{
			ID: "a-2", ActorPrincipalID: "p-admin", TargetTenantID: "t-1",
			Action: domain.ActionImpersonationEnd, Timestamp: govFixedTime.Add(time.Minute),
			Metadata: map[string]string{domain.AuditMetaImpersonationID: "imp-1"},
		},
		{
			ID: "a-1", ActorPrincipalID: "p-admin", TargetTenantID: "t-1",
			Action: domain.ActionImpersonationStart, Timestamp: govFixedTime,
			Metadata: map[string]string{domain.AuditMetaImpersonationID: "imp-1"},
		},
	}

	var gotFilter domain.AuditFilter
	svc := &mockAuditService{listFn: func(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
		gotFilter = f
		return entries, 5, nil
	}}
	h := NewHandler(nil, nil, nil, svc)

	rec := httptest.NewRecorder()
	h.ListAuditLogs(rec, govRequest(t, "/v1/audit?tenant_id=t-1&actor_id=p-admin&action=impersonation_end&max_results=2"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotFilter.TargetTenantID)
	assert.Equal(t, "t-1", *gotFilter.TargetTenantID)
	require.NotNil(t, gotFilter.ActorPrincipalID)
	assert.Equal(t, "p-admin", *gotFilter.ActorPrincipalID)
	require.NotNil(t, gotFilter.Action)
	assert.Equal(t, domain.ActionImpersonationEnd, *gotFilter.Action)
	assert.Equal(t, 2, gotFilter.Page.MaxResults)

	var body PaginatedAuditEntries
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "a-2", body.Data[0].ID)
	assert.Equal(t, "imp-1", body.Data[1].Metadata[domain.AuditMetaImpersonationID])
	require.NotNil(t, body.NextPageToken)
	assert.Equal(t, 2, domain.PageRequest{PageToken: *body.NextPageToken}.Offset())
}

func TestListAuditLogs_LastPageHasNoToken(t *testing.T) {
	t.Parallel()

	svc := &mockAuditService{listFn: func(context.Context, domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
		return nil, 0, nil
	}}
	h := NewHandler(nil, nil, nil, svc)

	rec := httptest.NewRecorder()
	h.ListAuditLogs(rec, govRequest(t, "/v1/audit"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body PaginatedAuditEntries
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Empty(t, body.Data)
	assert.NotNil(t, body.Data)
	assert.Nil(t, body.NextPageToken)
}

func TestListAuditLogs_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		err      error
		wantCode int
	}{
		{"access denied", "/v1/audit", domain.ErrAccessDenied("platform role required"), http.StatusForbidden},
		{"store failure", "/v1/audit", &domain.StoreError{Op: "list audit entries", Err: errors.New("db down")}, http.StatusServiceUnavailable},
		{"bad page size", "/v1/audit?max_results=lots", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &mockAuditService{listFn: func(context.Context, domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
				return nil, 0, tt.err
			}}
			h := NewHandler(nil, nil, nil, svc)

			rec := httptest.NewRecorder()
			h.ListAuditLogs(rec, govRequest(t, tt.target))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
