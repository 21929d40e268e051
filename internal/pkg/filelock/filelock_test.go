package filelock

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")
	l := New(path)

	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// Reacquirable after release
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	l.Release()
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")

	holder := New(path)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("holder Acquire() error = %v", err)
	}
	defer holder.Release()

	waiter := New(path)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := waiter.Acquire(ctx)
	if err == nil {
		waiter.Release()
		t.Fatal("Acquire() succeeded while lock was held by another instance")
	}
}
