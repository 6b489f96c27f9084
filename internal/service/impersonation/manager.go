// Package impersonation lets platform operators act inside a tenant through
// short-lived elevated credentials, with every start and end audited.
package impersonation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/metrics"
	"tenant-gate/internal/revocation"
)

// Impersonation defaults.
const (
	MaxTTL            = 30 * time.Minute
	DefaultTenantRole = domain.RoleAdmin
	DefaultReturnPath = "/admin/tenants/{tenant_id}"
	tenantPlaceholder = "{tenant_id}"
)

// CredentialIssuer mints signed credentials.
type CredentialIssuer interface {
	Issue(ctx context.Context, claims domain.Claims) (string, error)
}

// Config configures a Manager.
type Config struct {
	// TTL is clamped to (0, MaxTTL].
	TTL        time.Duration
	TenantRole string
	// ReturnPath is the post-impersonation redirect; {tenant_id} is replaced
	// with the impersonated tenant.
	ReturnPath string
}

// Manager starts and ends impersonation sessions.
type Manager struct {
	tenants     domain.TenantRepository
	audit       domain.AuditRepository
	issuer      CredentialIssuer
	revocations revocation.Store
	retrier     *AuditRetrier
	cfg         Config
	metrics     *metrics.Gate
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager creates a Manager.
func NewManager(
	tenants domain.TenantRepository,
	audit domain.AuditRepository,
	issuer CredentialIssuer,
	revocations revocation.Store,
	retrier *AuditRetrier,
	cfg Config,
	m *metrics.Gate,
	logger *slog.Logger,
) *Manager {
	if cfg.TTL <= 0 || cfg.TTL > MaxTTL {
		cfg.TTL = MaxTTL
	}
	if !domain.IsTenantRole(cfg.TenantRole) {
		cfg.TenantRole = DefaultTenantRole
	}
	if cfg.ReturnPath == "" {
		cfg.ReturnPath = DefaultReturnPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tenants:     tenants,
		audit:       audit,
		issuer:      issuer,
		revocations: revocations,
		retrier:     retrier,
		cfg:         cfg,
		metrics:     m,
		logger:      logger.With("component", "impersonation"),
		now:         time.Now,
	}
}

// Start issues an elevated credential letting the operator in sess act
// inside targetTenantID. The start is audited before the credential is
// returned; if the audit write fails no credential is returned.
func (m *Manager) Start(ctx context.Context, sess domain.SessionContext, targetTenantID string) (*domain.Elevation, error) {
	elev, err := m.start(ctx, sess, targetTenantID)
	m.metrics.Impersonation("start", resultLabel(err))
	return elev, err
}

func (m *Manager) start(ctx context.Context, sess domain.SessionContext, targetTenantID string) (*domain.Elevation, error) {
	if sess.Impersonating {
		return nil, domain.ErrAuthorization(domain.AuthorizationAlreadyImpersonating,
			"already impersonating tenant %s; end it first", sess.TenantID)
	}
	if !domain.IsPlatformRole(sess.Role) {
		m.logger.Info("impersonation refused", "principal_id", sess.Principal.ID, "role", sess.Role)
		return nil, domain.ErrAuthorization(domain.AuthorizationNotAuthorized,
			"impersonation requires a platform role")
	}
	if targetTenantID == "" {
		return nil, domain.ErrAuthorization(domain.AuthorizationTenantNotFound, "target tenant is required")
	}
	tenant, err := m.tenants.GetByID(ctx, targetTenantID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, domain.ErrAuthorization(domain.AuthorizationTenantNotFound, "tenant %s not found", targetTenantID)
		}
		return nil, &domain.StoreError{Op: "load tenant", Err: err}
	}
	if !tenant.PermitsAccess() {
		return nil, domain.ErrAuthorization(domain.AuthorizationTenantNotFound, "tenant %s not found", targetTenantID)
	}

	operator := sess.Principal
	claims := domain.Claims{
		SubjectID:     operator.ExternalIdentityID,
		Email:         operator.Email,
		DisplayName:   operator.DisplayName,
		TenantID:      tenant.ID,
		TenantRole:    m.cfg.TenantRole,
		ActingAs:      operator.ID,
		Impersonating: true,
		CredentialID:  uuid.NewString(),
		ExpiresAt:     m.now().UTC().Add(m.cfg.TTL).Truncate(time.Second),
	}
	raw, err := m.issuer.Issue(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("issue elevated credential: %w", err)
	}

	entry := &domain.AuditEntry{
		ActorPrincipalID: operator.ID,
		TargetTenantID:   tenant.ID,
		Action:           domain.ActionImpersonationStart,
		Timestamp:        m.now().UTC(),
		Metadata:         m.metadata(ctx, claims.CredentialID, claims.ExpiresAt),
	}
	if err := m.audit.Insert(ctx, entry); err != nil {
		m.logger.Error("impersonation start not audited, credential withheld",
			"operator_id", operator.ID, "tenant_id", tenant.ID, "cause", "infrastructure", "error", err)
		return nil, &domain.StoreError{Op: "audit impersonation start", Err: err}
	}

	m.logger.Info("impersonation started",
		"operator_id", operator.ID, "tenant_id", tenant.ID,
		"impersonation_id", claims.CredentialID, "expires_at", claims.ExpiresAt)
	return &domain.Elevation{
		Credential:      raw,
		ExpiresAt:       claims.ExpiresAt,
		ImpersonationID: claims.CredentialID,
		TenantID:        tenant.ID,
	}, nil
}

// End terminates the impersonation carried by sess. A session that is not
// impersonating, or whose elevated credential was already ended, is a no-op
// that still returns a redirect hint. The end audit entry is written
// best-effort: on failure it is queued for retry.
func (m *Manager) End(ctx context.Context, sess domain.SessionContext) (*domain.EndResult, error) {
	if !sess.Impersonating || sess.Revoked {
		return &domain.EndResult{RedirectHint: m.redirectHint(sess.TenantID)}, nil
	}

	// Revoke first so a failure leaves nothing half-done and the caller may retry.
	if err := m.revocations.Revoke(ctx, sess.ImpersonationID, sess.ExpiresAt); err != nil {
		m.metrics.Impersonation("end", metrics.ResultError)
		return nil, &domain.StoreError{Op: "revoke elevated credential", Err: err}
	}

	entry := &domain.AuditEntry{
		ActorPrincipalID: sess.AuditActorID(),
		TargetTenantID:   sess.TenantID,
		Action:           domain.ActionImpersonationEnd,
		Timestamp:        m.now().UTC(),
		Metadata:         m.metadata(ctx, sess.ImpersonationID, time.Time{}),
	}
	if err := m.audit.Insert(ctx, entry); err != nil {
		m.logger.Warn("impersonation end audit deferred",
			"operator_id", entry.ActorPrincipalID, "tenant_id", sess.TenantID, "cause", "infrastructure", "error", err)
		if m.retrier != nil {
			m.retrier.Enqueue(entry)
		} else {
			m.logger.Error("impersonation end audit lost", "impersonation_id", sess.ImpersonationID)
		}
	}

	m.metrics.Impersonation("end", metrics.ResultOK)
	m.logger.Info("impersonation ended",
		"operator_id", sess.ActingPrincipalID, "tenant_id", sess.TenantID, "impersonation_id", sess.ImpersonationID)
	return &domain.EndResult{RedirectHint: m.redirectHint(sess.TenantID), Ended: true}, nil
}

func (m *Manager) metadata(ctx context.Context, impersonationID string, expiresAt time.Time) map[string]string {
	meta := map[string]string{domain.AuditMetaImpersonationID: impersonationID}
	if !expiresAt.IsZero() {
		meta[domain.AuditMetaExpiresAt] = expiresAt.UTC().Format(time.RFC3339)
	}
	if id := domain.RequestIDFromContext(ctx); id != "" {
		meta[domain.AuditMetaRequestID] = id
	}
	return meta
}

func (m *Manager) redirectHint(tenantID string) string {
	if tenantID == "" {
		if i := strings.Index(m.cfg.ReturnPath, tenantPlaceholder); i >= 0 {
			return strings.TrimRight(m.cfg.ReturnPath[:i], "/")
		}
		return m.cfg.ReturnPath
	}
	return strings.ReplaceAll(m.cfg.ReturnPath, tenantPlaceholder, tenantID)
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	var aerr *domain.AuthorizationError
	if errors.As(err, &aerr) {
		return strings.ToLower(string(aerr.Code))
	}
	return metrics.ResultError
}
