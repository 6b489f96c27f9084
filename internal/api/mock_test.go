package api

import (
	"context"
	"sync"

	"tenant-gate/internal/domain"
)

// === Mocks ===

type mockAuditService struct {
	listFn func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error)
}

func (m *mockAuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	if m.listFn == nil {
		panic("mockAuditService.List called but not configured")
	}
	return m.listFn(ctx, filter)
}

type mockImpersonationService struct {
	startFn func(ctx context.Context, sess domain.SessionContext, tenantID string) (*domain.Elevation, error)
	endFn   func(ctx context.Context, sess domain.SessionContext) (*domain.EndResult, error)
}

func (m *mockImpersonationService) Start(ctx context.Context, sess domain.SessionContext, tenantID string) (*domain.Elevation, error) {
	if m.startFn == nil {
		panic("mockImpersonationService.Start called but not configured")
	}
	return m.startFn(ctx, sess, tenantID)
}

func (m *mockImpersonationService) End(ctx context.Context, sess domain.SessionContext) (*domain.EndResult, error) {
	if m.endFn == nil {
		panic("mockImpersonationService.End called but not configured")
	}
	return m.endFn(ctx, sess)
}

type mockProfileService struct {
	updateFn func(ctx context.Context, principalID, email, displayName string) (*domain.Principal, error)
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, principalID, email, displayName string) (*domain.Principal, error) {
	if m.updateFn == nil {
		panic("mockProfileService.UpdateProfile called but not configured")
	}
	return m.updateFn(ctx, principalID, email, displayName)
}

// mockUsageGate counts units against a fixed limit. It serves both the
// handler's Snapshot and the Metered middleware.
type mockUsageGate struct {
	mu       sync.Mutex
	limit    int64
	used     int64
	err      error
	recorded []string
}

func (m *mockUsageGate) decision(units int64) *domain.UsageDecision {
	d := &domain.UsageDecision{
		Allowed:      m.used+units <= m.limit,
		CurrentUsage: m.used,
		Limit:        domain.Limited(m.limit),
		PlanCode:     "free",
	}
	if !d.Allowed {
		d.Reason = domain.DenialReason("free", m.used, d.Limit)
	}
	return d
}

func (m *mockUsageGate) Snapshot(_ context.Context, _ *domain.Principal) (*domain.UsageDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d := m.decision(0)
	d.Allowed = m.used < m.limit
	return d, nil
}

func (m *mockUsageGate) CheckAndReserve(_ context.Context, _ *domain.Principal) (*domain.UsageDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.decision(1), nil
}

func (m *mockUsageGate) Record(_ context.Context, _ domain.SessionContext, units int64, operation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.used += units
	m.recorded = append(m.recorded, operation)
	return nil
}

func (m *mockUsageGate) TryConsume(_ context.Context, _ domain.SessionContext, units int64, operation string) (*domain.UsageDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d := m.decision(units)
	if d.Allowed {
		m.used += units
		m.recorded = append(m.recorded, operation)
		d.CurrentUsage = m.used
	}
	return d, nil
}

// tokenVerifier maps raw bearer strings to claims.
type tokenVerifier map[string]*domain.Claims

func (v tokenVerifier) Verify(_ context.Context, raw string) (*domain.Claims, error) {
	c, ok := v[raw]
	if !ok {
		return nil, domain.ErrCredential(domain.CredentialSignatureInvalid, nil, "unknown test token")
	}
	return c, nil
}

// principalResolver resolves claims by subject id.
type principalResolver map[string]*domain.Principal

func (r principalResolver) Resolve(_ context.Context, claims *domain.Claims) (*domain.Principal, error) {
	p, ok := r[claims.SubjectID]
	if !ok {
		return nil, domain.ErrNotFound("principal %s not found", claims.SubjectID)
	}
	return p, nil
}
