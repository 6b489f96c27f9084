// Package revocation records ended impersonation credentials so they are
// refused until their natural expiry.
package revocation

import (
	"context"
	"sync"
	"time"
)

// Store is a credential-id denylist.
type Store interface {
	Revoke(ctx context.Context, credentialID string, until time.Time) error
	IsRevoked(ctx context.Context, credentialID string) (bool, error)
}

// Memory is a process-local Store. Expired entries are dropped by Prune.
type Memory struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{until: map[string]time.Time{}, now: time.Now}
}

// Revoke implements Store. Entries already past until are not stored.
func (m *Memory) Revoke(_ context.Context, credentialID string, until time.Time) error {
	if credentialID == "" || !until.After(m.now()) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.until[credentialID]; !ok || until.After(cur) {
		m.until[credentialID] = until
	}
	return nil
}

// IsRevoked implements Store.
func (m *Memory) IsRevoked(_ context.Context, credentialID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.until[credentialID]
	return ok && m.now().Before(until), nil
}

// Prune drops expired entries and returns how many were removed.
func (m *Memory) Prune() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, until := range m.until {
		if !now.Before(until) {
			delete(m.until, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.until)
}
