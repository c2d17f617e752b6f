package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrLocked is returned when an exclusive lock could not be taken in time.
	ErrLocked = errors.New("storage: locked by another process")
)

// HistoryStore is an append-only log of observations that skips an entry
// whose rates equal the most recently stored one.
type HistoryStore interface {
	// Append stores obs unless its rates match the last entry. The returned
	// flag reports whether anything was written.
	Append(ctx context.Context, obs Observation) (bool, error)
	// LoadWindow returns observations with Timestamp >= now-window in
	// stored order.
	LoadWindow(ctx context.Context, now time.Time, window time.Duration) ([]Observation, error)
	// ListBetween returns observations in [from, to). A zero to is unbounded.
	ListBetween(ctx context.Context, from, to time.Time) ([]Observation, error)
}

// SignalStore persists the formatted spread of the last emitted alert.
type SignalStore interface {
	// Load returns the stored value and true, or false when nothing is stored.
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, spread string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

func inRange(ts, from, to time.Time) bool {
	if ts.Before(from) {
		return false
	}
	return to.IsZero() || ts.Before(to)
}
