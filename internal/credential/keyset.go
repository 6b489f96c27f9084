package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"tenant-gate/internal/metrics"
)

// Key lookup errors.
var (
	// ErrKeyNotFound means the key set was fetched but holds no key for the kid.
	ErrKeyNotFound = errors.New("signing key not found")
	// ErrKeySetUnavailable means the key set could not be fetched and no
	// previously fetched key matches.
	ErrKeySetUnavailable = errors.New("signing key set unavailable")
)

// KeySource resolves a verification key by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// StaticKeys is a fixed KeySource.
type StaticKeys map[string]any

// Key implements KeySource.
func (s StaticKeys) Key(_ context.Context, kid string) (any, error) {
	k, ok := s[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

// KeySetConfig configures a KeySetCache. Either IssuerURL (OIDC discovery) or
// JWKSURL must be set; JWKSURL wins when both are.
type KeySetConfig struct {
	IssuerURL    string
	JWKSURL      string
	TTL          time.Duration
	MinRefresh   time.Duration
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	Metrics      *metrics.Gate
	Logger       *slog.Logger
}

const (
	defaultKeySetTTL    = time.Hour
	defaultMinRefresh   = 10 * time.Second
	defaultFetchTimeout = 5 * time.Second
	maxKeySetBytes      = 1 << 20
)

// keySnapshot is immutable once published.
type keySnapshot struct {
	keys      map[string]any
	fetchedAt time.Time
}

// KeySetCache caches a remote JWK set. Readers load an immutable snapshot and
// only wait on a fetch when the key they need is not in it. An expired key is
// served while a background refresh replaces it, and a failed refresh keeps
// the previous snapshot.
type KeySetCache struct {
	cfg    KeySetConfig
	logger *slog.Logger
	now    func() time.Time

	snap        atomic.Pointer[keySnapshot]
	lastAttempt atomic.Int64 // unix nanos of the last fetch attempt
	lastFailed  atomic.Bool
	refreshing  atomic.Bool // a background refresh is in flight
	group       singleflight.Group

	urlMu   sync.Mutex
	jwksURL string
}

// NewKeySetCache creates a cache. Nothing is fetched until the first lookup.
func NewKeySetCache(cfg KeySetConfig) (*KeySetCache, error) {
	if cfg.IssuerURL == "" && cfg.JWKSURL == "" {
		return nil, fmt.Errorf("key set cache requires an issuer url or a jwks url")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultKeySetTTL
	}
	if cfg.MinRefresh <= 0 {
		cfg.MinRefresh = defaultMinRefresh
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KeySetCache{
		cfg:     cfg,
		logger:  logger.With("component", "keyset"),
		now:     time.Now,
		jwksURL: cfg.JWKSURL,
	}, nil
}

// Key returns the key for kid. A key from an expired snapshot is returned
// immediately and refreshed in the background. A kid missing from the
// snapshot forces a fetch, at most once per MinRefresh.
func (c *KeySetCache) Key(ctx context.Context, kid string) (any, error) {
	snap := c.snap.Load()
	now := c.now()

	if snap != nil {
		if k, ok := snap.keys[kid]; ok {
			if now.Sub(snap.fetchedAt) >= c.cfg.TTL {
				c.cfg.Metrics.KeySetFetch(metrics.ResultStale)
				c.refreshInBackground(ctx, snap, now)
			}
			return k, nil
		}
	}
	if c.backingOff(now) {
		if c.lastFailed.Load() {
			return nil, ErrKeySetUnavailable
		}
		if snap != nil {
			return nil, ErrKeyNotFound
		}
	}

	fresh, err := c.refresh(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	if k, ok := fresh.keys[kid]; ok {
		return k, nil
	}
	return nil, ErrKeyNotFound
}

// backingOff reports whether the last fetch attempt is within MinRefresh.
func (c *KeySetCache) backingOff(now time.Time) bool {
	last := c.lastAttempt.Load()
	return last != 0 && now.Sub(time.Unix(0, last)) < c.cfg.MinRefresh
}

// refreshInBackground starts at most one detached refresh, and none while
// backing off from the previous attempt.
func (c *KeySetCache) refreshInBackground(ctx context.Context, seen *keySnapshot, now time.Time) {
	if c.backingOff(now) || !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer c.refreshing.Store(false)
		if _, err := c.refresh(ctx, seen); err != nil {
			c.logger.Warn("serving stale signing keys after refresh failure", "error", err)
		}
	}()
}

// refresh fetches a new snapshot. Concurrent callers share one fetch, and a
// caller that observed an older snapshot reuses one published meanwhile.
func (c *KeySetCache) refresh(ctx context.Context, seen *keySnapshot) (*keySnapshot, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		if cur := c.snap.Load(); cur != nil && cur != seen && c.now().Sub(cur.fetchedAt) < c.cfg.TTL {
			return cur, nil
		}

		c.lastAttempt.Store(c.now().UnixNano())
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()

		keys, err := c.fetch(fetchCtx)
		if err != nil {
			c.lastFailed.Store(true)
			c.cfg.Metrics.KeySetFetch(metrics.ResultError)
			return nil, err
		}
		next := &keySnapshot{keys: keys, fetchedAt: c.now()}
		c.snap.Store(next)
		c.lastFailed.Store(false)
		c.cfg.Metrics.KeySetFetch(metrics.ResultOK)
		c.logger.Debug("signing key set refreshed", "keys", len(keys))
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keySnapshot), nil
}

func (c *KeySetCache) fetch(ctx context.Context) (map[string]any, error) {
	url, err := c.resolveJWKSURL(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use == "enc" || k.KeyID == "" {
			continue
		}
		if !k.IsPublic() {
			k = k.Public()
		}
		if k.Key == nil {
			continue
		}
		keys[k.KeyID] = k.Key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks at %s holds no usable signing keys", url)
	}
	return keys, nil
}

// resolveJWKSURL returns the configured JWKS URL or discovers it once from
// the issuer's OpenID configuration.
func (c *KeySetCache) resolveJWKSURL(ctx context.Context) (string, error) {
	c.urlMu.Lock()
	defer c.urlMu.Unlock()
	if c.jwksURL != "" {
		return c.jwksURL, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.cfg.HTTPClient), c.cfg.IssuerURL)
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("oidc discovery claims: %w", err)
	}
	if meta.JWKSURL == "" {
		return "", fmt.Errorf("oidc discovery for %s returned no jwks_uri", c.cfg.IssuerURL)
	}
	c.jwksURL = meta.JWKSURL
	return c.jwksURL, nil
}
