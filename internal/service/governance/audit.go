// Package governance implements audit trail access for platform operators.
package governance

import (
	"context"
	"log/slog"

	"tenant-gate/internal/domain"
)

// AuditService provides audit log operations.
type AuditService struct {
	repo   domain.AuditRepository
	logger *slog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo domain.AuditRepository, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{repo: repo, logger: logger.With("component", "audit")}
}

// List returns a filtered, paginated list of audit entries, newest first.
// Requires a platform role outside of impersonation.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	sess, err := requirePlatformRole(ctx)
	if err != nil {
		return nil, 0, err
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("list audit entries", "principal_id", sess.Principal.ID, "cause", "infrastructure", "error", err)
		return nil, 0, &domain.StoreError{Op: "list audit entries", Err: err}
	}
	return entries, total, nil
}
