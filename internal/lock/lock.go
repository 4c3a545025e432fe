// Package lock provides a short-lived lease per sync target so that two
// runs for the same connection never interleave their cursor writes.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned when the lease is held by someone else.
var ErrLocked = errors.New("lease is held by another holder")

// Release gives a lease back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out exclusive, expiring leases keyed by name.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// ConnectionKey is the lease key of a calendar connection.
func ConnectionKey(connectionID string) string {
	return "calsync:connection:" + connectionID
}

// LocalLocker is an in-process Locker for single-binary deployments.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
	seq    uint64
	now    func() time.Time
}

type localLease struct {
	id      uint64
	expires time.Time
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]localLease), now: time.Now}
}

// Acquire takes the lease for key unless an unexpired lease exists.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, ErrLocked
	}
	l.seq++
	id := l.seq
	l.leases[key] = localLease{id: id, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// Only the holder that took the lease may drop it.
		if held, ok := l.leases[key]; ok && held.id == id {
			delete(l.leases, key)
		}
		return nil
	}, nil
}
