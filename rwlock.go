package rwlock

import (
	"context"

	"github.com/sharedlock/rwlock/internal/coordinator"
	"github.com/sharedlock/rwlock/internal/events"
	"github.com/sharedlock/rwlock/internal/lockstate"
)

// Locker is the public coordinator: it binds an [Adapter] to a
// process-local set of tracked Locks and drives acquire-timeout
// enforcement, event emission, and (when the adapter supports it and
// [WithGC]/[WithGCInterval] is given) the periodic garbage-collection
// ticker.
//
// A Locker is safe for concurrent use by multiple goroutines.
type Locker struct {
	c *coordinator.Coordinator
}

// NewLocker constructs a Locker over adp. Panics if an option receives an
// invalid value; see individual With* functions for constraints.
func NewLocker(adp Adapter, opts ...LockerOption) *Locker {
	var cfg lockerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Locker{c: coordinator.New(adp, cfg.gcIntervalMs, nil)}
}

// Setup prepares the backend's backing structures (tables, indexes, files).
// Idempotent: memoized on first success, and concurrency-safe against
// concurrent callers sharing the one in-flight call.
func (lk *Locker) Setup(ctx context.Context) error {
	return lk.c.Setup(ctx)
}

// LockAsReader requests shared access to name. It blocks until the adapter
// admits the lock, rejects it, ctx is done, or opts.AcquireTimeout elapses.
func (lk *Locker) LockAsReader(ctx context.Context, name string, opts LockOptions) (*Lock, error) {
	l, err := lk.c.LockAsReader(ctx, name, opts.toInternal())
	if err != nil {
		return nil, err
	}
	return wrapLock(l), nil
}

// LockAsWriter requests exclusive access to name. It blocks until the
// adapter admits the lock, rejects it, ctx is done, or
// opts.AcquireTimeout elapses.
func (lk *Locker) LockAsWriter(ctx context.Context, name string, opts LockOptions) (*Lock, error) {
	l, err := lk.c.LockAsWriter(ctx, name, opts.toInternal())
	if err != nil {
		return nil, err
	}
	return wrapLock(l), nil
}

// Release is idempotent: it is a no-op if lock is already releasing or not
// tracked by this Locker; otherwise it asks the adapter to release lock and
// unconditionally drops it from the local registry regardless of outcome.
func (lk *Locker) Release(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	return lk.c.Release(ctx, lock.l)
}

// ReleaseMany releases every lock concurrently.
func (lk *Locker) ReleaseMany(ctx context.Context, locks []*Lock) error {
	internal := make([]*lockstate.Lock, 0, len(locks))
	for _, lock := range locks {
		if lock != nil {
			internal = append(internal, lock.l)
		}
	}
	return lk.c.ReleaseMany(ctx, internal)
}

// ReleaseAll drops every entry the adapter owns and clears the local
// registry, regardless of what it previously contained.
func (lk *Locker) ReleaseAll(ctx context.Context) error {
	return lk.c.ReleaseAll(ctx)
}

// GC runs one garbage-collection cycle immediately — the same body the
// automatic ticker invokes on every tick. Returns (nil, nil) if the
// adapter doesn't support GC.
func (lk *Locker) GC(ctx context.Context) (*Cycle, error) {
	return lk.c.GC(ctx)
}

// Stats is a read-only operational snapshot; it does not affect
// acquisition semantics.
type Stats = coordinator.Stats

// Stats returns a snapshot of the Locker's current state.
func (lk *Locker) Stats() Stats {
	return lk.c.Stats()
}

// Subscribe registers l to receive every Event the Locker emits, returning
// a function that unsubscribes it. l must never block or call back into
// this Locker; a panicking l is recovered and logged, never propagated.
func (lk *Locker) Subscribe(l Listener) (unsubscribe func()) {
	return lk.c.Events().Subscribe(func(e events.Event) {
		l(wrapEvent(e))
	})
}

// Close stops the GC driver, if running. LockAsReader/LockAsWriter calls
// made after Close fail with [ErrLockerClosed]; already-tracked locks are
// unaffected and may still be released.
func (lk *Locker) Close() error {
	return lk.c.Close()
}

// EnsureReadingTaskConcurrency acquires a reader lock on name, runs task,
// and releases the lock in a finally-block, returning task's result.
func EnsureReadingTaskConcurrency[T any](ctx context.Context, lk *Locker, name string, opts LockOptions, task func(context.Context) (T, error)) (T, error) {
	return coordinator.EnsureReadingTaskConcurrency(ctx, lk.c, name, opts.toInternal(), task)
}

// EnsureWritingTaskConcurrency acquires a writer lock on name, runs task,
// and releases the lock in a finally-block, returning task's result.
func EnsureWritingTaskConcurrency[T any](ctx context.Context, lk *Locker, name string, opts LockOptions, task func(context.Context) (T, error)) (T, error) {
	return coordinator.EnsureWritingTaskConcurrency(ctx, lk.c, name, opts.toInternal(), task)
}
