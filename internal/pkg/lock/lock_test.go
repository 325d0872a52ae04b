package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockContext_Timeout(t *testing.T) {
	ul := NewUserLock()
	ul.Lock("a")

	called := false
	err := ul.WithLockContext(context.Background(), "a", 20*time.Millisecond, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)

	ul.Unlock("a")
	assert.Eventually(t, func() bool { return ul.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWithLockContext_Cancelled(t *testing.T) {
	ul := NewUserLock()
	ul.Lock("a")
	defer ul.Unlock("a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ul.WithLockContext(ctx, "a", time.Second, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLockContext_PropagatesError(t *testing.T) {
	ul := NewUserLock()
	boom := errors.New("boom")

	err := ul.WithLockContext(context.Background(), "a", time.Second, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, ul.IsLocked("a"))
}

func TestLockWithTimeout_AcquiresAfterRelease(t *testing.T) {
	ul := NewUserLock()
	ul.Lock("a")

	go func() {
		time.Sleep(10 * time.Millisecond)
		ul.Unlock("a")
	}()

	require.True(t, ul.LockWithTimeout(context.Background(), "a", time.Second))
	assert.True(t, ul.IsLocked("a"))
	ul.Unlock("a")
	assert.False(t, ul.IsLocked("a"))
}

func TestUnlock_UnknownIsNoop(t *testing.T) {
	ul := NewUserLock()
	assert.NotPanics(t, func() { ul.Unlock("missing") })
}

func TestIndependentKeys(t *testing.T) {
	ul := NewUserLock()
	ul.Lock("a")
	defer ul.Unlock("a")

	assert.True(t, ul.TryLock("b"))
	ul.Unlock("b")
	assert.False(t, ul.TryLock("a"))
}
