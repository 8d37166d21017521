package registry

import (
	"sync"

	"github.com/sharedlock/rwlock/internal/lockstate"
)

// Registry is the process-local set of Locks a Locker currently tracks, from
// enqueue until terminal removal. Membership is by identity: Add/Remove/
// Contains compare *lockstate.Lock pointers, never name+type+status.
//
// Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	locks []*lockstate.Lock
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Add inserts l. Adding the same pointer twice appends a duplicate entry;
// callers (the coordinator) only ever Add a Lock once, immediately after
// constructing it, so this is not guarded against here.
func (r *Registry) Add(l *lockstate.Lock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = append(r.locks, l)
}

// Remove deletes l by identity and reports whether it was present.
func (r *Registry) Remove(l *lockstate.Lock) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, have := range r.locks {
		if have == l {
			r.locks = append(r.locks[:i], r.locks[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether l is currently tracked, by identity.
func (r *Registry) Contains(l *lockstate.Lock) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, have := range r.locks {
		if have == l {
			return true
		}
	}
	return false
}

// Len returns the number of tracked Locks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// All returns a copy of every tracked Lock.
func (r *Registry) All() []*lockstate.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]*lockstate.Lock, len(r.locks))
	copy(cp, r.locks)
	return cp
}

// IDs returns the id of every tracked Lock, in tracking order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.locks))
	for i, l := range r.locks {
		ids[i] = l.ID()
	}
	return ids
}

// Filter returns a copy of the tracked Locks for which keep reports true.
// keep is called with the internal lock held, so it must not call back into
// the Registry.
func (r *Registry) Filter(keep func(*lockstate.Lock) bool) []*lockstate.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*lockstate.Lock
	for _, l := range r.locks {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// ByName returns the tracked Locks requested on name.
func (r *Registry) ByName(name string) []*lockstate.Lock {
	return r.Filter(func(l *lockstate.Lock) bool { return l.Name() == name })
}

// ByType returns the tracked Locks of the given Type.
func (r *Registry) ByType(typ lockstate.Type) []*lockstate.Lock {
	return r.Filter(func(l *lockstate.Lock) bool { return l.Type() == typ })
}

// ByStatus returns the tracked Locks currently in the given Status.
func (r *Registry) ByStatus(status lockstate.Status) []*lockstate.Lock {
	return r.Filter(func(l *lockstate.Lock) bool { return l.Status() == status })
}

// Clear empties the registry and returns everything that was tracked, for
// callers (releaseAll) that need to act on the full set while dropping it.
func (r *Registry) Clear() []*lockstate.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]*lockstate.Lock, len(r.locks))
	copy(cp, r.locks)
	r.locks = nil
	return cp
}
