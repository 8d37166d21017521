package coordinator

import (
	"context"
	"time"

	"github.com/sharedlock/rwlock/internal/adapter"
	"github.com/sharedlock/rwlock/internal/events"
	"github.com/sharedlock/rwlock/internal/rtlog"
	"k8s.io/client-go/util/workqueue"
)

// gcQueue is the subset of workqueue.DelayingInterface the GC driver needs,
// narrowed so tests can substitute a lightweight fake instead of a real
// client-go queue.
type gcQueue interface {
	AddAfter(item any, duration time.Duration)
	Get() (item any, shutdown bool)
	Done(item any)
	ShutDown()
}

// gcTickKey is the queue's single well-known item: the GC driver has only
// one logical "thing to do", rescheduled after every tick.
const gcTickKey = "gc-tick"

// ensureGCRunning starts the GC driver goroutine if GC is configured, the
// adapter supports it, and no driver goroutine is currently running. Unlike
// a sync.Once-guarded start, gcActive is reset when a driver goroutine exits
// after draining the registry (see runGCLoop), so a later lock landing on an
// empty registry restarts the ticker instead of leaving GC permanently off
// for the rest of the Coordinator's life.
func (c *Coordinator) ensureGCRunning() {
	if c.gcIntervalMs <= 0 {
		return
	}
	if _, ok := c.adp.(adapter.GCer); !ok {
		return
	}
	if !c.gcActive.CompareAndSwap(false, true) {
		return
	}

	q := workqueue.NewDelayingQueue()
	c.gcQueueMu.Lock()
	c.gcQueue = q
	c.gcQueueMu.Unlock()

	q.AddAfter(gcTickKey, time.Duration(c.gcIntervalMs)*time.Millisecond)
	go c.runGCLoop(q)
}

// runGCLoop is the GC driver: one goroutine pulling a single rescheduling
// item off q. Because only this goroutine calls Get on q, two cycles can
// never run from the ticker side; GC's own gcRunning guard is what catches
// an on-demand GC() call racing with a tick. Each tick first checks the
// registry per spec §4.5 ("if registry is empty, stop the ticker; else ...
// call adapter.gc"): an empty registry shuts down q and clears gcActive,
// skipping the adapter call entirely, so ensureGCRunning can start a fresh
// driver the next time a lock is tracked.
func (c *Coordinator) runGCLoop(q gcQueue) {
	for {
		item, shutdown := q.Get()
		if shutdown {
			return
		}

		if c.reg.Len() == 0 {
			q.Done(item)
			c.gcActive.Store(false)
			q.ShutDown()
			continue
		}

		if _, err := c.GC(context.Background()); err != nil {
			rtlog.Logger().Debug("gc tick did not complete", "err", err)
		}
		q.Done(item)
		q.AddAfter(item, time.Duration(c.gcIntervalMs)*time.Millisecond)
	}
}

// GC runs one garbage-collection cycle immediately: the same body the
// ticker invokes on every tick, exposed as spec §6's locker.gc() so tests
// and operators can force a collection without waiting for gcIntervalMs.
// Returns (nil, nil) if the adapter doesn't support GC. Emits GarbageCycle
// on success and Error on failure or overlap with another running cycle;
// the returned error mirrors what was emitted.
func (c *Coordinator) GC(ctx context.Context) (*events.Cycle, error) {
	gcer, ok := c.adp.(adapter.GCer)
	if !ok {
		return nil, nil
	}

	if !c.gcRunning.CompareAndSwap(false, true) {
		err := &AdapterError{Op: "gc", Err: ErrGCOverlap}
		c.bus.Emit(events.Event{Kind: events.Error, Err: err})
		return nil, err
	}
	defer c.gcRunning.Store(false)

	now := c.clk.Now()
	staleAt := now.Add(-2 * time.Duration(c.gcIntervalMs) * time.Millisecond)

	result, err := gcer.GC(ctx, adapter.GCInput{
		Registry:     c.reg,
		GCIntervalMs: c.gcIntervalMs,
		At:           now,
		StaleAt:      staleAt,
	})
	took := c.clk.Since(now)

	if err != nil {
		wrapped := &AdapterError{Op: "gc", Err: err}
		c.bus.Emit(events.Event{Kind: events.Error, Err: wrapped})
		return nil, wrapped
	}

	cycle := events.Cycle{
		CollectedCount: result.CollectedCount,
		RefreshedCount: result.RefreshedCount,
		Took:           took,
	}
	c.lastCycle.Store(&cycle)
	c.bus.Emit(events.Event{Kind: events.GarbageCycle, Cycle: cycle})
	return &cycle, nil
}
