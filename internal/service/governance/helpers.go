package governance

import (
	"context"

	"tenant-gate/internal/domain"
)

// requirePlatformRole checks that the caller in context holds a platform role
// in their own right. Impersonated sessions never qualify: their effective
// role is tenant-scoped.
func requirePlatformRole(ctx context.Context) (domain.SessionContext, error) {
	sess, ok := domain.SessionFromContext(ctx)
	if !ok {
		return domain.SessionContext{}, domain.ErrAccessDenied("authentication required")
	}
	if sess.Impersonating || !domain.IsPlatformRole(sess.Role) {
		return domain.SessionContext{}, domain.ErrAccessDenied("platform role required")
	}
	return sess, nil
}
