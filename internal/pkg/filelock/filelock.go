// Package filelock serializes state-file mutations across independent
// process invocations (a scheduled run and a manual run may overlap).
package filelock

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// Lock is the interface for cross-process mutual exclusion.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type Lock interface {
	// Acquire blocks until the lock is held or the context is done.
	Acquire(ctx context.Context) error
	// Release releases the lock if we still hold it.
	Release() error
}

// FileLock implements Lock with an OS-level exclusive lock on a
// dedicated lock file next to the state files it guards.
type FileLock struct {
	fl *flock.Flock
}

// New creates a file lock at the given path. The file is created on
// first acquisition and intentionally never removed.
func New(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

// Acquire blocks until the exclusive lock is held, polling at a short
// interval, or returns the context error.
func (l *FileLock) Acquire(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return err
	}
	if !ok {
		// TryLockContext only returns false when the context is done.
		return ctx.Err()
	}
	return nil
}

// Release releases the exclusive lock.
func (l *FileLock) Release() error {
	return l.fl.Unlock()
}
