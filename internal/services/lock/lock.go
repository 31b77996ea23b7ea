// Package lock serializes turns per username so two concurrent turns cannot
// both read the same record and overwrite each other's history.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context ended.
var ErrNotAcquired = errors.New("session is busy")

// Locker hands out per-username locks. Acquire blocks until the lock is held
// or ctx is done; the returned func releases it and is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, username string) (release func(), err error)
}
