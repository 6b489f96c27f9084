package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-gate/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimits(rps float64, burst int) (*callerLimits, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return newCallerLimits(RateLimitConfig{RequestsPerSecond: rps, Burst: burst, IdleTTL: time.Minute}, clock.Now), clock
}

func TestCallerLimits_TakeAndRefill(t *testing.T) {
	t.Parallel()
	limits, clock := newTestLimits(1, 2)

	ok, _, remaining := limits.take("ip:10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, _, _ = limits.take("ip:10.0.0.1")
	require.True(t, ok)

	ok, retryAfter, _ := limits.take("ip:10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retryAfter)

	clock.Advance(time.Second)
	ok, _, _ = limits.take("ip:10.0.0.1")
	assert.True(t, ok, "one token refills per second")
}

func TestCallerLimits_Sweep(t *testing.T) {
	t.Parallel()
	limits, clock := newTestLimits(1, 1)

	limits.take("ip:a")
	clock.Advance(45 * time.Second)
	limits.take("ip:b")
	clock.Advance(30 * time.Second)

	limits.sweep()
	assert.Equal(t, 1, limits.len(), "only the caller idle past the TTL is evicted")
}

func TestRateLimiter_Middleware(t *testing.T) {
	t.Parallel()
	limits, _ := newTestLimits(1, 1)
	h := limits.middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(sess *domain.SessionContext, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/usage", nil)
		req.RemoteAddr = remoteAddr
		if sess != nil {
			req = req.WithContext(domain.WithSession(req.Context(), *sess))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	operator := &domain.SessionContext{Principal: domain.Principal{ID: "p-op"}}
	impersonating := &domain.SessionContext{
		Principal:         domain.Principal{ID: "p-op"},
		TenantID:          "t-1",
		Impersonating:     true,
		ActingPrincipalID: "p-op",
	}

	rec := send(operator, "10.0.0.1:1")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = send(impersonating, "10.0.0.9:1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code, "impersonation shares the operator's budget")
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body["reason"])

	assert.Equal(t, http.StatusNoContent, send(&domain.SessionContext{Principal: domain.Principal{ID: "p-2"}}, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusNoContent, send(nil, "10.0.0.1:1").Code, "anonymous callers are keyed by address")
	assert.Equal(t, http.StatusTooManyRequests, send(nil, "10.0.0.1:2").Code)
}

func TestRateLimiter_StopsWithContext(t *testing.T) {
	t.Parallel()
	h := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 100, Burst: 10})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		remoteAddr, xff, want string
	}{
		{remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{remoteAddr: "[::1]:12345", want: "::1"},
		{remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{remoteAddr: "10.0.0.1:1234", xff: "203.0.113.50", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		assert.Equal(t, tt.want, clientIP(req), tt.remoteAddr)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
