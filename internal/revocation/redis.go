package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "gate:revoked:"

// Redis is a Store shared by every gate replica. Keys expire on their own.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis store using client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, prefix: defaultKeyPrefix, now: time.Now}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Revoke implements Store.
func (r *Redis) Revoke(ctx context.Context, credentialID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if credentialID == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+credentialID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}

// IsRevoked implements Store.
func (r *Redis) IsRevoked(ctx context.Context, credentialID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+credentialID).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)
