package lock

import "errors"

// ErrLockTimeout is returned when an account lock is not acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")
