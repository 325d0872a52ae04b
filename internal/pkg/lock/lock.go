// Package lock serialises read-modify-write cycles on a single account.
package lock

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	mu   sync.Mutex
	refs int // waiters plus holder, guarded by UserLock.mu
}

// UserLock hands out one mutex per account id. Entries are dropped once
// nobody holds or waits on them, so the map stays proportional to the
// number of accounts currently being mutated.
type UserLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewUserLock creates an empty UserLock.
func NewUserLock() *UserLock {
	return &UserLock{entries: make(map[string]*entry)}
}

func (ul *UserLock) acquire(userID string) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	e, ok := ul.entries[userID]
	if !ok {
		e = &entry{}
		ul.entries[userID] = e
	}
	e.refs++
	return e
}

func (ul *UserLock) release(userID string, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(ul.entries, userID)
	}
}

// Lock blocks until the account's lock is held.
func (ul *UserLock) Lock(userID string) {
	ul.acquire(userID).mu.Lock()
}

// Unlock releases the account's lock. Unlocking an account that is not
// locked is a no-op.
func (ul *UserLock) Unlock(userID string) {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Unlock()
	ul.release(userID, e)
}

// TryLock acquires the lock only if it is free.
func (ul *UserLock) TryLock(userID string) bool {
	e := ul.acquire(userID)
	if e.mu.TryLock() {
		return true
	}
	ul.release(userID, e)
	return false
}

// LockWithTimeout waits up to timeout (or until ctx ends) for the lock.
// It reports whether the lock was acquired.
func (ul *UserLock) LockWithTimeout(ctx context.Context, userID string, timeout time.Duration) bool {
	e := ul.acquire(userID)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-waitCtx.Done():
		// The waiter still owns a reference; hand the mutex back once it lands.
		go func() {
			<-done
			e.mu.Unlock()
			ul.release(userID, e)
		}()
		return false
	}
}

// WithLock runs fn while holding the account's lock.
func (ul *UserLock) WithLock(userID string, fn func() error) error {
	ul.Lock(userID)
	defer ul.Unlock(userID)
	return fn()
}

// WithLockContext runs fn while holding the account's lock, giving up with
// ErrLockTimeout if the lock is not acquired within timeout.
func (ul *UserLock) WithLockContext(ctx context.Context, userID string, timeout time.Duration, fn func() error) error {
	if !ul.LockWithTimeout(ctx, userID, timeout) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer ul.Unlock(userID)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// IsLocked is a point-in-time check and may be stale immediately.
func (ul *UserLock) IsLocked(userID string) bool {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	if !ok {
		return false
	}
	if e.mu.TryLock() {
		e.mu.Unlock()
		return false
	}
	return true
}

// size reports tracked entries; used by tests.
func (ul *UserLock) size() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.entries)
}
