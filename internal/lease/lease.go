// Package lease grants short exclusive claims on content items so that only
// one dispatcher works on an item at a time. A lease is recorded in the
// content row itself and expires after a fixed staleness window; there is no
// heartbeat.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrContention means another holder owns the item. Callers skip it.
	ErrContention = errors.New("lease: held by another dispatcher")
	// ErrNotHeld means the lease was already released or reclaimed.
	ErrNotHeld = errors.New("lease: not held")
)

// DefaultStaleAfter is the window after which an unreleased lease is
// considered abandoned.
const DefaultStaleAfter = 15 * time.Minute

// Store is the slice of the content repository the manager writes through.
type Store interface {
	AcquireLease(ctx context.Context, id int64, holder string, now time.Time) (bool, error)
	LeaseHolder(ctx context.Context, id int64) (string, error)
	ReleaseLease(ctx context.Context, id int64, holder string) (bool, error)
	ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int64, error)
}

type Lease struct {
	ContentID  int64
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

type Manager struct {
	store      Store
	staleAfter time.Duration
	newHolder  func() (string, error)
}

func NewManager(store Store, staleAfter time.Duration) *Manager {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Manager{
		store:      store,
		staleAfter: staleAfter,
		newHolder:  func() (string, error) { return gonanoid.New() },
	}
}

func (m *Manager) StaleAfter() time.Duration { return m.staleAfter }

// MaxHold is the longest a holder may spend in a single publish call. It
// stays a quarter window short of staleAfter so the lease cannot be
// reclaimed while the call is still running.
func MaxHold(staleAfter time.Duration) time.Duration {
	return staleAfter - staleAfter/4
}

// Acquire claims contentID for a fresh holder token. It returns ErrContention
// when the conditional write matched nothing or the read-back shows a
// different holder.
func (m *Manager) Acquire(ctx context.Context, contentID int64, now time.Time) (*Lease, error) {
	holder, err := m.newHolder()
	if err != nil {
		return nil, fmt.Errorf("generate lease holder: %w", err)
	}

	ok, err := m.store.AcquireLease(ctx, contentID, holder, now)
	if err != nil {
		return nil, fmt.Errorf("acquire lease on content %d: %w", contentID, err)
	}
	if !ok {
		return nil, ErrContention
	}

	recorded, err := m.store.LeaseHolder(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("verify lease on content %d: %w", contentID, err)
	}
	if recorded != holder {
		slog.Warn("lease read-back mismatch", "content_id", contentID, "holder", holder, "recorded", recorded)
		return nil, ErrContention
	}

	return &Lease{
		ContentID:  contentID,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.staleAfter),
	}, nil
}

// Release hands the item back without an outcome. It never touches a lease
// owned by a different holder.
func (m *Manager) Release(ctx context.Context, l *Lease) error {
	ok, err := m.store.ReleaseLease(ctx, l.ContentID, l.Holder)
	if err != nil {
		return fmt.Errorf("release lease on content %d: %w", l.ContentID, err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}

// ReleaseStale frees every lease acquired before now minus the staleness
// window and returns how many were freed.
func (m *Manager) ReleaseStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.store.ReleaseStaleLeases(ctx, now.Add(-m.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("release stale leases: %w", err)
	}
	if n > 0 {
		slog.Info("released stale leases", "count", n)
	}
	return n, nil
}
