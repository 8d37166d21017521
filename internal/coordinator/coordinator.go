package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sharedlock/rwlock/internal/adapter"
	"github.com/sharedlock/rwlock/internal/events"
	"github.com/sharedlock/rwlock/internal/lockstate"
	"github.com/sharedlock/rwlock/internal/registry"
	"github.com/sharedlock/rwlock/internal/rtlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"
)

// Coordinator is the Locker: it binds an Adapter to a process-local
// LockRegistry and drives acquire-timeout enforcement, event emission, and
// the periodic GC ticker. Re-exported at the module root as rwlock.Locker.
//
// Synchronization strategy mirrors the teacher's Manager: setupGroup
// (singleflight) serializes the one-time, idempotent Setup call; gcRunning
// (an atomic.Bool) guards against two GC cycles — an on-demand GC() and the
// ticker's own tick — running concurrently; the registry and event bus are
// already safe for concurrent use on their own.
type Coordinator struct {
	adp          adapter.Adapter
	gcIntervalMs int
	reg          *registry.Registry
	bus          *events.Bus
	clk          clock.Clock

	setupGroup singleflight.Group
	setupDone  atomic.Bool

	gcQueueMu  sync.Mutex
	gcQueue    gcQueue
	gcActive   atomic.Bool
	gcRunning  atomic.Bool
	lastCycle  atomic.Pointer[events.Cycle]

	closed atomic.Bool
}

// New constructs a Coordinator over adp. gcIntervalMs enables the GC driver
// when positive and adp implements adapter.GCer; 0 disables it. Panics if
// gcIntervalMs is negative, matching the panicking-validator convention used
// throughout this module's options. clk may be nil, defaulting to
// clock.RealClock{}; tests inject a fake clock for deterministic
// acquire-timeout and staleAt arithmetic.
func New(adp adapter.Adapter, gcIntervalMs int, clk clock.Clock) *Coordinator {
	if gcIntervalMs < 0 {
		panic(fmt.Sprintf("rwlock: gcIntervalMs must be >= 0, got %d", gcIntervalMs))
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Coordinator{
		adp:          adp,
		gcIntervalMs: gcIntervalMs,
		reg:          registry.New(),
		bus:          events.New(),
		clk:          clk,
	}
}

// Events returns the bus new listeners should Subscribe to.
func (c *Coordinator) Events() *events.Bus { return c.bus }

// Registry returns the process-local set of Locks currently tracked.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Setup delegates to the adapter's Setup, memoized on first success via
// singleflight so concurrent callers share one in-flight call instead of
// racing to create schema/indexes. A no-op if the adapter doesn't implement
// adapter.Setupper.
func (c *Coordinator) Setup(ctx context.Context) error {
	if c.setupDone.Load() {
		return nil
	}
	_, err, _ := c.setupGroup.Do("setup", func() (any, error) {
		if c.setupDone.Load() {
			return nil, nil
		}
		setupper, ok := c.adp.(adapter.Setupper)
		if !ok {
			c.setupDone.Store(true)
			return nil, nil
		}
		if err := setupper.Setup(ctx, adapter.SetupOptions{GCIntervalMs: c.gcIntervalMs}); err != nil {
			return nil, &AdapterError{Op: "setup", Err: err}
		}
		c.setupDone.Store(true)
		return nil, nil
	})
	if err != nil {
		return err
	}
	return nil
}

// LockAsReader builds a Lock requesting shared access to name, tracks it,
// and blocks until the adapter admits it, rejects it, or ctx is done.
func (c *Coordinator) LockAsReader(ctx context.Context, name string, opts lockstate.Options) (*lockstate.Lock, error) {
	return c.acquire(ctx, name, lockstate.Reader, opts)
}

// LockAsWriter builds a Lock requesting exclusive access to name, tracks it,
// and blocks until the adapter admits it, rejects it, or ctx is done.
func (c *Coordinator) LockAsWriter(ctx context.Context, name string, opts lockstate.Options) (*lockstate.Lock, error) {
	return c.acquire(ctx, name, lockstate.Writer, opts)
}

func (c *Coordinator) acquire(ctx context.Context, name string, typ lockstate.Type, opts lockstate.Options) (*lockstate.Lock, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("coordinator: lock %q: %w", name, ErrLockerClosed)
	}

	l := lockstate.New(name, typ, opts, c.clk)
	c.reg.Add(l)
	c.ensureGCRunning()

	rtlog.Logger().Debug("lock acquiring", "name", name, "type", typ, "id", l.ID())

	settled := make(chan struct{})
	if d, ok := opts.AcquireTimeout(); ok {
		timer := c.clk.NewTimer(d)
		defer timer.Stop()
		go func() {
			select {
			case <-timer.C():
				_ = l.Reject(fmt.Errorf("lock %q: %w", name, ErrAcquireTimeout))
			case <-settled:
			}
		}()
	}

	err := c.adp.Acquire(ctx, l)
	close(settled)

	if err != nil {
		if l.Status() == lockstate.Acquiring {
			_ = l.Reject(fmt.Errorf("adapter acquire: %w", err))
		}
		c.reg.Remove(l)
		c.bus.Emit(events.Event{Kind: events.RejectedLock, Lock: l})
		return nil, &LockError{LockID: l.ID(), Name: name, Err: err}
	}

	if l.Status() != lockstate.Acquired {
		reason := l.Reason()
		if reason == nil {
			reason = ErrAcquireTimeout
		}
		c.reg.Remove(l)
		c.bus.Emit(events.Event{Kind: events.RejectedLock, Lock: l})
		if errors.Is(reason, ErrAcquireTimeout) {
			return nil, &AcquireTimeoutError{LockID: l.ID(), Name: name}
		}
		return nil, &LockError{LockID: l.ID(), Name: name, Err: reason}
	}

	c.bus.Emit(events.Event{Kind: events.AcquiredLock, Lock: l})
	rtlog.Logger().Debug("lock acquired", "name", name, "type", typ, "id", l.ID())
	return l, nil
}

// Release is idempotent: a no-op if l is already Releasing or isn't tracked;
// drops a Released l from the registry; otherwise transitions l to
// Releasing, asks the adapter to release it, and unconditionally removes l
// from the registry regardless of the adapter's outcome.
func (c *Coordinator) Release(ctx context.Context, l *lockstate.Lock) error {
	if l == nil || l.Status() == lockstate.Releasing || !c.reg.Contains(l) {
		return nil
	}
	if l.Status() == lockstate.Released {
		c.reg.Remove(l)
		return nil
	}

	if err := l.MarkReleasing(); err != nil {
		return &WorkflowError{LockID: l.ID(), Err: err}
	}

	err := c.adp.Release(ctx, l)
	c.reg.Remove(l)
	if err != nil {
		return &LockError{LockID: l.ID(), Name: l.Name(), Err: err}
	}

	c.bus.Emit(events.Event{Kind: events.ReleasedLock, Lock: l})
	rtlog.Logger().Debug("lock released", "name", l.Name(), "id", l.ID())
	return nil
}

// ReleaseMany releases every lock concurrently, the same errgroup fan-out
// the distributed adapter's GC cycle uses for its collect/refresh pair.
func (c *Coordinator) ReleaseMany(ctx context.Context, locks []*lockstate.Lock) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range locks {
		g.Go(func() error { return c.Release(gctx, l) })
	}
	return g.Wait()
}

// ReleaseAll drops every entry the adapter owns and clears the registry,
// regardless of what it previously contained.
func (c *Coordinator) ReleaseAll(ctx context.Context) error {
	if err := c.adp.ReleaseAll(ctx); err != nil {
		return &AdapterError{Op: "releaseAll", Err: err}
	}
	c.reg.Clear()
	return nil
}

// Close stops the GC driver, if running. Acquire calls made after Close
// fail with ErrLockerClosed; already-tracked locks are unaffected and may
// still be released.
func (c *Coordinator) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.gcQueueMu.Lock()
	q := c.gcQueue
	c.gcQueueMu.Unlock()
	if q != nil {
		q.ShutDown()
	}
	return nil
}

// Stats is a read-only operational snapshot, modeled on the teacher's
// Pool.Instances() accessor: it does not affect acquisition semantics.
type Stats struct {
	RegistrySize int
	GCRunning    bool
	LastCycle    *events.Cycle
}

// Stats returns a snapshot of the coordinator's current state.
func (c *Coordinator) Stats() Stats {
	return Stats{
		RegistrySize: c.reg.Len(),
		GCRunning:    c.gcRunning.Load(),
		LastCycle:    c.lastCycle.Load(),
	}
}

// EnsureReadingTaskConcurrency acquires a reader lock on name, runs task,
// and releases the lock in a finally-block, returning task's result. A
// package-level generic function rather than a method, since Go methods
// cannot carry their own type parameters.
func EnsureReadingTaskConcurrency[T any](ctx context.Context, c *Coordinator, name string, opts lockstate.Options, task func(context.Context) (T, error)) (T, error) {
	return ensureTaskConcurrency(ctx, c, name, lockstate.Reader, opts, task)
}

// EnsureWritingTaskConcurrency acquires a writer lock on name, runs task,
// and releases the lock in a finally-block, returning task's result.
func EnsureWritingTaskConcurrency[T any](ctx context.Context, c *Coordinator, name string, opts lockstate.Options, task func(context.Context) (T, error)) (T, error) {
	return ensureTaskConcurrency(ctx, c, name, lockstate.Writer, opts, task)
}

func ensureTaskConcurrency[T any](ctx context.Context, c *Coordinator, name string, typ lockstate.Type, opts lockstate.Options, task func(context.Context) (T, error)) (T, error) {
	var zero T
	l, err := c.acquire(ctx, name, typ, opts)
	if err != nil {
		return zero, err
	}
	defer func() {
		if rerr := c.Release(context.WithoutCancel(ctx), l); rerr != nil {
			rtlog.Logger().Warn("task-scope release failed", "lock", l.ID(), "err", rerr)
		}
	}()
	return task(ctx)
}
