// Package lock keeps two runners from executing the same upgrade at once.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned by Acquire when another holder owns the key
var ErrLocked = errors.New("lock is held by another runner")

// ErrLeaseLost is returned when a lease expired or was taken over
var ErrLeaseLost = errors.New("lock lease lost")

// Locker hands out exclusive, expiring leases on keys
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is an acquired lock
type Lease interface {
	// Refresh extends the lease by its original ttl
	Refresh(ctx context.Context) error
	// Release gives up the lease. Releasing a lost lease returns ErrLeaseLost.
	Release(ctx context.Context) error
}

// NopLocker grants every request. Used when a single runner is guaranteed.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return nopLease{}, nil
}

type nopLease struct{}

func (nopLease) Refresh(context.Context) error { return nil }
func (nopLease) Release(context.Context) error { return nil }
