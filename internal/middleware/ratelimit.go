package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tenant-gate/internal/domain"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64 // sustained rate per caller
	Burst             int
	// IdleTTL evicts callers that have not been seen for this long (default 10m).
	IdleTTL           time.Duration
}

// callerLimits holds one token bucket per caller.
type callerLimits struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*callerBucket
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCallerLimits(cfg RateLimitConfig, now func() time.Time) *callerLimits {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &callerLimits{cfg: cfg, now: now, buckets: make(map[string]*callerBucket)}
}

// take spends one token for key. When the bucket is empty it returns how
// long the caller should wait.
func (c *callerLimits) take(key string) (ok bool, retryAfter time.Duration, remaining int) {
	now := c.now()

	c.mu.Lock()
	b, found := c.buckets[key]
	if !found {
		b = &callerBucket{limiter: rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), c.cfg.Burst)}
		c.buckets[key] = b
	}
	b.lastSeen = now
	c.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 0, 0
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay, 0
	}
	return true, 0, int(math.Max(0, b.limiter.TokensAt(now)))
}

// sweep drops callers idle for longer than IdleTTL.
func (c *callerLimits) sweep() {
	cutoff := c.now().Add(-c.cfg.IdleTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, b := range c.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(c.buckets, k)
		}
	}
}

func (c *callerLimits) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// RateLimiter enforces a token bucket per caller: per audit actor once a
// session is in the context, so an operator keeps one budget across every
// tenant they impersonate, and per client IP otherwise. Over-limit requests
// get 429 RATE_LIMITED with Retry-After. Idle callers are swept until ctx is
// done.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	limits := newCallerLimits(cfg, time.Now)

	go func() {
		ticker := time.NewTicker(limits.cfg.IdleTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limits.sweep()
			}
		}
	}()

	return limits.middleware
}

func (c *callerLimits) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter, remaining := c.take(rateLimitKey(r))
		if !ok {
			writeTooManyRequests(w, retryAfter)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(c.cfg.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if sess, ok := domain.SessionFromContext(r.Context()); ok {
		return "principal:" + sess.AuditActorID()
	}
	return "ip:" + clientIP(r)
}

// clientIP uses RemoteAddr only; X-Forwarded-For is client-controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusTooManyRequests,
		"reason":  "RATE_LIMITED",
		"message": "rate limit exceeded",
	})
}
