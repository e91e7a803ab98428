// SPDX-License-Identifier: MIT

// Package lock implements TTL-bounded, owner-scoped mutual exclusion on top
// of the document store's atomic find-and-modify primitives. There is no
// fairness and no queue: a losing acquirer fails fast, and an expired lease
// is reclaimable by anyone.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/ticketd/ticketd/internal/log"
	"github.com/ticketd/ticketd/internal/metrics"
	"github.com/ticketd/ticketd/internal/store"
)

// DefaultTTL bounds a lease when the caller does not specify one.
const DefaultTTL = 60 * time.Second

// Store is the subset of the lock collection gateway the manager needs.
type Store interface {
	TakeoverExpired(ctx context.Context, resourceID, ownerID string, now, expiresAt time.Time) (bool, error)
	Insert(ctx context.Context, lock store.Lock) error
	RefreshOwned(ctx context.Context, resourceID, ownerID string, expiresAt time.Time) (bool, error)
	DeleteOwned(ctx context.Context, resourceID, ownerID string) error
	Get(ctx context.Context, resourceID string) (*store.Lock, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Status describes a lock for inspection endpoints.
type Status struct {
	ResourceID string    `json:"resource_id"`
	OwnerID    string    `json:"owner_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsExpired  bool      `json:"is_expired"`
}

// Manager coordinates lease acquisition, refresh and release.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the default lease TTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lock manager over the given store.
func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts to take the lock for resourceID on behalf of ownerID.
// It first tries to atomically claim an expired lease, then to insert a
// fresh document; the unique index on resource_id makes the insert the only
// serialization point. A lost race returns (false, nil).
func (m *Manager) Acquire(ctx context.Context, resourceID, ownerID string) (bool, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)

	taken, err := m.store.TakeoverExpired(ctx, resourceID, ownerID, now, expiresAt)
	if err != nil {
		return false, err
	}
	if taken {
		metrics.IncLockAcquisition(true)
		m.logAcquired(ctx, resourceID, ownerID, "takeover")
		return true, nil
	}

	err = m.store.Insert(ctx, store.Lock{
		ResourceID: resourceID,
		OwnerID:    ownerID,
		AcquiredAt: now,
		ExpiresAt:  expiresAt,
	})
	if errors.Is(err, store.ErrLockHeld) {
		metrics.IncLockAcquisition(false)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	metrics.IncLockAcquisition(true)
	m.logAcquired(ctx, resourceID, ownerID, "insert")
	return true, nil
}

func (m *Manager) logAcquired(ctx context.Context, resourceID, ownerID, via string) {
	logger := log.WithComponentFromContext(ctx, "lock")
	logger.Debug().
		Str("event", "lock.acquired").
		Str("resource_id", resourceID).
		Str("owner_id", ownerID).
		Str("via", via).
		Msg("lock acquired")
}

// Refresh extends the lease iff ownerID still owns it. A false return means
// the caller has lost its lease and must abandon work.
func (m *Manager) Refresh(ctx context.Context, resourceID, ownerID string) (bool, error) {
	expiresAt := m.now().UTC().Add(m.ttl)
	ok, err := m.store.RefreshOwned(ctx, resourceID, ownerID, expiresAt)
	if err != nil {
		return false, err
	}
	if !ok {
		logger := log.WithComponentFromContext(ctx, "lock")
		logger.Warn().
			Str("event", "lock.lost").
			Str("resource_id", resourceID).
			Str("owner_id", ownerID).
			Msg("lease refresh rejected, ownership lost")
	}
	return ok, nil
}

// Release deletes the lock iff ownerID owns it. Idempotent.
func (m *Manager) Release(ctx context.Context, resourceID, ownerID string) error {
	return m.store.DeleteOwned(ctx, resourceID, ownerID)
}

// Inspect returns the current lock status, or nil when no document exists.
func (m *Manager) Inspect(ctx context.Context, resourceID string) (*Status, error) {
	lock, err := m.store.Get(ctx, resourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Status{
		ResourceID: lock.ResourceID,
		OwnerID:    lock.OwnerID,
		AcquiredAt: lock.AcquiredAt,
		ExpiresAt:  lock.ExpiresAt,
		IsExpired:  m.now().UTC().After(lock.ExpiresAt),
	}, nil
}

// CleanupExpired removes all expired lock documents; maintenance helper.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now().UTC())
}
