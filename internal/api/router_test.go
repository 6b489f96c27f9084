package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/middleware"
)

const (
	memberToken   = "member-token"
	operatorToken = "operator-token"
	elevatedToken = "elevated-token"
)

func strPtr(s string) *string { return &s }

type routerFixture struct {
	server        *httptest.Server
	gate          *mockUsageGate
	impersonation *mockImpersonationService
	profiles      *mockProfileService
}

func newRouterFixture(t *testing.T, strict bool) *routerFixture {
	t.Helper()
	exp := time.Now().Add(time.Hour)

	verifier := tokenVerifier{
		memberToken:   {SubjectID: "ext-member", ExpiresAt: exp},
		operatorToken: {SubjectID: "ext-op", ExpiresAt: exp},
		elevatedToken: {
			SubjectID: "ext-op", Impersonating: true, ActingAs: "p-op", TenantID: "t-1",
			TenantRole: domain.RoleAdmin, CredentialID: "imp-1", ExpiresAt: exp,
		},
	}
	resolver := principalResolver{
		"ext-member": {ID: "p-member", ExternalIdentityID: "ext-member", TenantID: strPtr("t-9"), Role: domain.RoleMember},
		"ext-op":     {ID: "p-op", ExternalIdentityID: "ext-op", Role: domain.RolePlatformOperator},
	}

	f := &routerFixture{
		gate:          &mockUsageGate{limit: 2},
		impersonation: &mockImpersonationService{},
		profiles:      &mockProfileService{},
	}
	audit := &mockAuditService{listFn: func(context.Context, domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
		return nil, 0, nil
	}}
	h := NewHandler(f.impersonation, f.gate, f.profiles, audit)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "gate_test_total", Help: "test"}))

	router := NewRouter(ctx, h, RouterConfig{
		Authenticator: middleware.NewAuthenticator(verifier, resolver, nil, WriteError, nil),
		UsageGate:     f.gate,
		Metered:       middleware.MeteredConfig{Units: 1, Strict: strict},
		RateLimit:     middleware.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Gatherer:      reg,
	})
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.server.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_PublicEndpoints(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	resp := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "gate_test_total")
}

func TestRouter_RequiresCredential(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	tests := []struct {
		name       string
		token      string
		wantReason string
	}{
		{"missing", "", "UNAUTHENTICATED"},
		{"unknown", "forged", "SIGNATURE_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodGet, "/v1/session", tt.token, "")
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body := decode[Error](t, resp)
			assert.Equal(t, tt.wantReason, body.Reason)
		})
	}
}

func TestRouter_Session(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	t.Run("member", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/v1/session", memberToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[Session](t, resp)
		assert.Equal(t, "p-member", got.PrincipalID)
		assert.Equal(t, "t-9", got.TenantID)
		assert.Equal(t, domain.RoleMember, got.Role)
		assert.False(t, got.Impersonating)
	})

	t.Run("impersonating", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/v1/session", elevatedToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[Session](t, resp)
		assert.Equal(t, "t-1", got.TenantID)
		assert.Equal(t, domain.RoleAdmin, got.Role)
		assert.True(t, got.Impersonating)
		assert.Equal(t, "p-op", got.ActingPrincipalID)
		assert.Equal(t, "imp-1", got.ImpersonationID)
	})
}

func TestRouter_UpdateProfile(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)
	f.profiles.updateFn = func(_ context.Context, id, email, name string) (*domain.Principal, error) {
		return &domain.Principal{ID: id, Email: email, DisplayName: name, Role: domain.RoleMember}, nil
	}

	resp := f.do(t, http.MethodPatch, "/v1/profile", memberToken, `{"email":"new@example.com","display_name":"New"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[Principal](t, resp)
	assert.Equal(t, "p-member", got.ID)
	assert.Equal(t, "new@example.com", got.Email)

	resp = f.do(t, http.MethodPatch, "/v1/profile", elevatedToken, `{"email":"x@example.com"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_Impersonation(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)
	exp := time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC)
	f.impersonation.startFn = func(_ context.Context, sess domain.SessionContext, tenantID string) (*domain.Elevation, error) {
		if !domain.IsPlatformRole(sess.Role) {
			return nil, domain.ErrAuthorization(domain.AuthorizationNotAuthorized, "platform role required")
		}
		if tenantID != "t-1" {
			return nil, domain.ErrAuthorization(domain.AuthorizationTenantNotFound, "tenant %s not found", tenantID)
		}
		return &domain.Elevation{Credential: "jwt", ExpiresAt: exp, ImpersonationID: "imp-1", TenantID: tenantID}, nil
	}
	f.impersonation.endFn = func(_ context.Context, sess domain.SessionContext) (*domain.EndResult, error) {
		return &domain.EndResult{RedirectHint: "/admin/tenants/" + sess.TenantID, Ended: sess.Impersonating}, nil
	}

	t.Run("start", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/impersonation", operatorToken, `{"tenant_id":"t-1"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		got := decode[Elevation](t, resp)
		assert.Equal(t, "jwt", got.Credential)
		assert.Equal(t, "imp-1", got.ImpersonationID)
		assert.True(t, exp.Equal(got.ExpiresAt))
	})

	t.Run("refusals", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, "/v1/impersonation", memberToken, `{"tenant_id":"t-1"}`)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = f.do(t, http.MethodPost, "/v1/impersonation", operatorToken, `{"tenant_id":"t-404"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "TENANT_NOT_FOUND", decode[Error](t, resp).Reason)

		resp = f.do(t, http.MethodPost, "/v1/impersonation", operatorToken, `{}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("end", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/v1/impersonation", elevatedToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[EndImpersonation](t, resp)
		assert.True(t, got.Ended)
		assert.Equal(t, "/admin/tenants/t-1", got.RedirectHint)
	})
}

func TestRouter_Usage(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)
	f.gate.used = 1

	resp := f.do(t, http.MethodGet, "/v1/usage", memberToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[Usage](t, resp)
	assert.Equal(t, int64(1), got.CurrentUsage)
	require.NotNil(t, got.Limit)
	assert.Equal(t, int64(2), *got.Limit)
	assert.True(t, got.Allowed)
}

func TestRouter_Usage_StoreFailure(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)
	f.gate.err = &domain.StoreError{Op: "sum usage", Err: errors.New("down")}

	resp := f.do(t, http.MethodGet, "/v1/usage", memberToken, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_MeteredOperation(t *testing.T) {
	t.Parallel()

	for _, strict := range []bool{false, true} {
		name := "check then record"
		if strict {
			name = "strict"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t, strict)

			for i := 0; i < 2; i++ {
				resp := f.do(t, http.MethodPost, "/v1/operations/export", memberToken, "")
				require.Equal(t, http.StatusOK, resp.StatusCode)
				got := decode[OperationResult](t, resp)
				assert.Equal(t, "export", got.Operation)
				assert.NotEmpty(t, got.RequestID)
			}

			resp := f.do(t, http.MethodPost, "/v1/operations/export", memberToken, "")
			require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			assert.Equal(t, "2", resp.Header.Get("X-Usage-Limit"))
			body := decode[Error](t, resp)
			assert.Equal(t, domain.QuotaLimitExceeded, body.Reason)
			require.NotNil(t, body.CurrentUsage)
			assert.Equal(t, int64(2), *body.CurrentUsage)

			f.gate.mu.Lock()
			defer f.gate.mu.Unlock()
			assert.Equal(t, []string{"export", "export"}, f.gate.recorded)
		})
	}
}

func TestRouter_MeteredOperation_InvalidNameNotRecorded(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false)

	resp := f.do(t, http.MethodPost, "/v1/operations/Bad%20Name", memberToken, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.gate.mu.Lock()
	defer f.gate.mu.Unlock()
	assert.Empty(t, f.gate.recorded)
}
