package memadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedlock/rwlock/internal/adapter"
	"github.com/sharedlock/rwlock/internal/lockstate"
	"github.com/sharedlock/rwlock/internal/rtlog"
	"github.com/sharedlock/rwlock/internal/sentinel"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// ErrNotInQueue is returned by Release when the lock's entry is no longer
// present (already released, or collected by GC).
const ErrNotInQueue = sentinel.Error("lock is not in the queue anymore")

// entry pairs a tracked Lock with its heartbeat, mirroring the distributed
// adapter's {id, type, at} queue record (spec §3) without the wire encoding.
type entry struct {
	lock      *lockstate.Lock
	heartbeat int64 // UnixNano, refreshed by GC
}

// Adapter is the single-process reference implementation of spec §4.3: a
// mapping name -> ordered list of (lock, heartbeat), with admission decided
// by scanning the list on every poll.
//
// Safe for concurrent use.
type Adapter struct {
	clock clock.PassiveClock

	mu     sync.Mutex
	queues map[string][]*entry
}

var _ adapter.Adapter = (*Adapter)(nil)
var _ adapter.GCer = (*Adapter)(nil)

// New returns an empty Adapter. c may be nil, defaulting to clock.RealClock.
func New(c clock.PassiveClock) *Adapter {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Adapter{
		clock:  c,
		queues: make(map[string][]*entry),
	}
}

// Acquire appends lock to its name's queue, then polls the admission rule
// every lock.Options().PullInterval() until lock is Acquired or stops being
// Acquiring. On exit without acquisition, the entry is removed.
func (a *Adapter) Acquire(ctx context.Context, lock *lockstate.Lock) error {
	a.enqueue(lock)

	err := wait.PollUntilContextCancel(ctx, lock.Options().PullInterval(), true, func(context.Context) (bool, error) {
		return a.tryAdmit(lock)
	})

	if lock.Status() != lockstate.Acquired {
		a.remove(lock)
	}
	if err != nil {
		return fmt.Errorf("memadapter: acquire %s: %w", lock.ID(), err)
	}
	return nil
}

func (a *Adapter) enqueue(lock *lockstate.Lock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues[lock.Name()] = append(a.queues[lock.Name()], &entry{
		lock:      lock,
		heartbeat: a.clock.Now().UnixNano(),
	})
}

// tryAdmit evaluates the admission rule once. It reports (true, nil) to stop
// polling — either lock was just admitted, or it already stopped being
// Acquiring for an external reason (e.g. a coordinator-driven acquire
// timeout) — and (false, nil) to keep waiting.
func (a *Adapter) tryAdmit(lock *lockstate.Lock) (bool, error) {
	if lock.Status() != lockstate.Acquiring {
		return true, nil
	}

	a.mu.Lock()
	admitted := isAdmitted(a.queues[lock.Name()], lock)
	a.mu.Unlock()

	if !admitted {
		return false, nil
	}
	if err := lock.MarkAcquired(); err != nil {
		return false, fmt.Errorf("marking admitted lock acquired: %w", err)
	}
	return true, nil
}

// isAdmitted implements spec §4.3's rule: a Writer is admitted iff it is the
// queue head; a Reader is admitted iff no Writer precedes it. Both reduce to
// one scan: walk from the head, and disqualify target the moment an entry
// ahead of it would block its type.
func isAdmitted(queue []*entry, target *lockstate.Lock) bool {
	for _, e := range queue {
		if e.lock == target {
			return true
		}
		if target.Type() == lockstate.Writer || e.lock.Type() == lockstate.Writer {
			return false
		}
	}
	return false
}

// Release removes lock's entry from its name's queue. Fails with
// ErrNotInQueue if the entry is absent.
func (a *Adapter) Release(_ context.Context, lock *lockstate.Lock) error {
	if !a.remove(lock) {
		return fmt.Errorf("memadapter: release %s: %w", lock.ID(), ErrNotInQueue)
	}
	if err := lock.MarkReleased(); err != nil {
		return fmt.Errorf("memadapter: release %s: %w", lock.ID(), err)
	}
	return nil
}

func (a *Adapter) remove(lock *lockstate.Lock) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	queue := a.queues[lock.Name()]
	for i, e := range queue {
		if e.lock == lock {
			a.queues[lock.Name()] = append(queue[:i], queue[i+1:]...)
			if len(a.queues[lock.Name()]) == 0 {
				delete(a.queues, lock.Name())
			}
			return true
		}
	}
	return false
}

// ReleaseAll drops every tracked entry.
func (a *Adapter) ReleaseAll(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues = make(map[string][]*entry)
	return nil
}

// GC refreshes the heartbeat of every entry whose lock is in in.Registry and
// collects every other entry whose heartbeat is older than in.StaleAt.
func (a *Adapter) GC(_ context.Context, in adapter.GCInput) (adapter.GCResult, error) {
	live := make(map[*lockstate.Lock]struct{})
	for _, l := range in.Registry.All() {
		live[l] = struct{}{}
	}

	staleAt := in.StaleAt.UnixNano()
	at := in.At.UnixNano()

	a.mu.Lock()
	defer a.mu.Unlock()

	var result adapter.GCResult
	for name, queue := range a.queues {
		kept := queue[:0]
		for _, e := range queue {
			if _, isLive := live[e.lock]; isLive {
				e.heartbeat = at
				result.RefreshedCount++
				kept = append(kept, e)
				continue
			}
			if e.heartbeat < staleAt {
				result.CollectedCount++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(a.queues, name)
		} else {
			a.queues[name] = kept
		}
	}

	rtlog.Logger().Debug("memadapter gc cycle",
		"collected", result.CollectedCount, "refreshed", result.RefreshedCount)
	return result, nil
}
