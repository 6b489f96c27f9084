package governance

import (
	"context"
	"fmt"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/testutil"
)

// errTest is a sentinel error for test scenarios.
var errTest = fmt.Errorf("test error")

func strPtr(s string) *string { return &s }

func sessionCtx(role string, impersonating bool) context.Context {
	return domain.WithSession(context.Background(), domain.SessionContext{
		Principal:     domain.Principal{ID: "op-1", Role: role},
		Role:          role,
		Impersonating: impersonating,
	})
}

// adminCtx returns a context with a platform admin session for testing.
func adminCtx() context.Context { return sessionCtx(domain.RolePlatformAdmin, false) }

type mockAuditRepo = testutil.MockAuditRepo
