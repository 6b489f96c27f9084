// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"
	"time"

	"tenant-gate/internal/domain"
)

// === Audit Repository Mock ===

// MockAuditRepo implements domain.AuditRepository for testing. Inserted
// entries are collected unless InsertFn fails.
type MockAuditRepo struct {
	InsertFn func(ctx context.Context, e *domain.AuditEntry) error
	ListFn   func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error)

	mu      sync.Mutex
	Entries []*domain.AuditEntry // collected entries for assertions
}

// Insert implements the interface method for testing.
func (m *MockAuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, e)
	return nil
}

// List implements the interface method for testing.
func (m *MockAuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockAuditRepo.List")
}

// Collected returns a copy of the collected entries.
func (m *MockAuditRepo) Collected() []*domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditEntry(nil), m.Entries...)
}

// LastEntry returns the last collected audit entry, or nil if none.
func (m *MockAuditRepo) LastEntry() *domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// HasAction returns true if any collected entry has the given action.
func (m *MockAuditRepo) HasAction(action string) bool {
	for _, e := range m.Collected() {
		if e.Action == action {
			return true
		}
	}
	return false
}

// === Principal Repository Mock ===

// MockPrincipalRepo implements domain.PrincipalRepository for testing.
type MockPrincipalRepo struct {
	GetByExternalIDFn func(ctx context.Context, externalID string) (*domain.Principal, error)
	GetByIDFn         func(ctx context.Context, id string) (*domain.Principal, error)
	CreateFn          func(ctx context.Context, p *domain.Principal, initial *domain.Subscription) (*domain.Principal, error)
	UpdateProfileFn   func(ctx context.Context, req domain.UpdateProfileRequest) (*domain.Principal, error)
}

// GetByExternalID implements the interface method for testing.
func (m *MockPrincipalRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Principal, error) {
	if m.GetByExternalIDFn != nil {
		return m.GetByExternalIDFn(ctx, externalID)
	}
	panic("unexpected call to MockPrincipalRepo.GetByExternalID")
}

// GetByID implements the interface method for testing.
func (m *MockPrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	panic("unexpected call to MockPrincipalRepo.GetByID")
}

// Create implements the interface method for testing.
func (m *MockPrincipalRepo) Create(ctx context.Context, p *domain.Principal, initial *domain.Subscription) (*domain.Principal, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p, initial)
	}
	panic("unexpected call to MockPrincipalRepo.Create")
}

// UpdateProfile implements the interface method for testing.
func (m *MockPrincipalRepo) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.Principal, error) {
	if m.UpdateProfileFn != nil {
		return m.UpdateProfileFn(ctx, req)
	}
	panic("unexpected call to MockPrincipalRepo.UpdateProfile")
}

// === Tenant Repository Mock ===

// MockTenantRepo implements domain.TenantRepository for testing.
type MockTenantRepo struct {
	CreateFn  func(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error)
	GetByIDFn func(ctx context.Context, id string) (*domain.Tenant, error)
}

// Create implements the interface method for testing.
func (m *MockTenantRepo) Create(ctx context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	panic("unexpected call to MockTenantRepo.Create")
}

// GetByID implements the interface method for testing.
func (m *MockTenantRepo) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	panic("unexpected call to MockTenantRepo.GetByID")
}

// === Plan Repository Mock ===

// MockPlanRepo implements domain.PlanRepository for testing.
type MockPlanRepo struct {
	GetFn    func(ctx context.Context, code string) (*domain.Plan, error)
	ListFn   func(ctx context.Context) ([]domain.Plan, error)
	UpsertFn func(ctx context.Context, p *domain.Plan) error
}

// Get implements the interface method for testing.
func (m *MockPlanRepo) Get(ctx context.Context, code string) (*domain.Plan, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, code)
	}
	panic("unexpected call to MockPlanRepo.Get")
}

// List implements the interface method for testing.
func (m *MockPlanRepo) List(ctx context.Context) ([]domain.Plan, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	panic("unexpected call to MockPlanRepo.List")
}

// Upsert implements the interface method for testing.
func (m *MockPlanRepo) Upsert(ctx context.Context, p *domain.Plan) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, p)
	}
	panic("unexpected call to MockPlanRepo.Upsert")
}

// === Subscription Repository Mock ===

// MockSubscriptionRepo implements domain.SubscriptionRepository for testing.
type MockSubscriptionRepo struct {
	GetActiveFn func(ctx context.Context, principalID string) (*domain.Subscription, error)
}

// GetActive implements the interface method for testing.
func (m *MockSubscriptionRepo) GetActive(ctx context.Context, principalID string) (*domain.Subscription, error) {
	if m.GetActiveFn != nil {
		return m.GetActiveFn(ctx, principalID)
	}
	panic("unexpected call to MockSubscriptionRepo.GetActive")
}

// === Usage Repository Mock ===

// MockUsageRepo implements domain.UsageRepository for testing.
type MockUsageRepo struct {
	SumBetweenFn          func(ctx context.Context, principalID string, since, until time.Time) (int64, error)
	AppendFn              func(ctx context.Context, r *domain.UsageRecord) error
	AppendIfWithinLimitFn func(ctx context.Context, r *domain.UsageRecord, since, until time.Time, limit int64) (int64, bool, error)
}

// SumBetween implements the interface method for testing.
func (m *MockUsageRepo) SumBetween(ctx context.Context, principalID string, since, until time.Time) (int64, error) {
	if m.SumBetweenFn != nil {
		return m.SumBetweenFn(ctx, principalID, since, until)
	}
	panic("unexpected call to MockUsageRepo.SumBetween")
}

// Append implements the interface method for testing.
func (m *MockUsageRepo) Append(ctx context.Context, r *domain.UsageRecord) error {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, r)
	}
	panic("unexpected call to MockUsageRepo.Append")
}

// AppendIfWithinLimit implements the interface method for testing.
func (m *MockUsageRepo) AppendIfWithinLimit(ctx context.Context, r *domain.UsageRecord, since, until time.Time, limit int64) (int64, bool, error) {
	if m.AppendIfWithinLimitFn != nil {
		return m.AppendIfWithinLimitFn(ctx, r, since, until, limit)
	}
	panic("unexpected call to MockUsageRepo.AppendIfWithinLimit")
}

// === Credential Issuer Mock ===

// MockCredentialIssuer records issued claims and returns a fixed token.
type MockCredentialIssuer struct {
	IssueFn func(ctx context.Context, claims domain.Claims) (string, error)

	mu     sync.Mutex
	Issued []domain.Claims
}

// Issue implements the credential issuer contract for testing.
func (m *MockCredentialIssuer) Issue(ctx context.Context, claims domain.Claims) (string, error) {
	if m.IssueFn != nil {
		tok, err := m.IssueFn(ctx, claims)
		if err != nil {
			return "", err
		}
		m.record(claims)
		return tok, nil
	}
	m.record(claims)
	return "elevated-" + claims.CredentialID, nil
}

func (m *MockCredentialIssuer) record(c domain.Claims) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Issued = append(m.Issued, c)
}

// === Revocation Store Mock ===

// MockRevocationStore implements revocation.Store for testing.
type MockRevocationStore struct {
	RevokeFn    func(ctx context.Context, credentialID string, until time.Time) error
	IsRevokedFn func(ctx context.Context, credentialID string) (bool, error)

	mu      sync.Mutex
	Revoked map[string]time.Time
}

// Revoke implements the interface method for testing.
func (m *MockRevocationStore) Revoke(ctx context.Context, credentialID string, until time.Time) error {
	if m.RevokeFn != nil {
		if err := m.RevokeFn(ctx, credentialID, until); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Revoked == nil {
		m.Revoked = map[string]time.Time{}
	}
	m.Revoked[credentialID] = until
	return nil
}

// IsRevoked implements the interface method for testing.
func (m *MockRevocationStore) IsRevoked(ctx context.Context, credentialID string) (bool, error) {
	if m.IsRevokedFn != nil {
		return m.IsRevokedFn(ctx, credentialID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Revoked[credentialID]
	return ok, nil
}

var (
	_ domain.AuditRepository        = (*MockAuditRepo)(nil)
	_ domain.PrincipalRepository    = (*MockPrincipalRepo)(nil)
	_ domain.TenantRepository       = (*MockTenantRepo)(nil)
	_ domain.PlanRepository         = (*MockPlanRepo)(nil)
	_ domain.SubscriptionRepository = (*MockSubscriptionRepo)(nil)
	_ domain.UsageRepository        = (*MockUsageRepo)(nil)
)
