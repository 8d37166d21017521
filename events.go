package rwlock

import "github.com/sharedlock/rwlock/internal/events"

// EventKind identifies the event variant carried by an Event.
type EventKind = events.Kind

const (
	// AcquiredLock fires when a Lock transitions to Acquired.
	AcquiredLock = events.AcquiredLock
	// RejectedLock fires when a Lock transitions to Rejected.
	RejectedLock = events.RejectedLock
	// ReleasedLock fires when a Lock transitions to Released.
	ReleasedLock = events.ReleasedLock
	// GarbageCycle fires after a GC cycle completes successfully.
	GarbageCycle = events.GarbageCycle
	// ErrorEvent fires when a GC cycle, or another background operation,
	// fails without a caller present to receive the error directly. Named
	// ErrorEvent rather than Error to avoid colliding with the error
	// interface at the call site.
	ErrorEvent = events.Error
)

// Cycle is the payload of a GarbageCycle event.
type Cycle = events.Cycle

// Event is one notification delivered to every subscribed Listener. Exactly
// one of Lock, Cycle, Err is populated, matching Kind.
type Event struct {
	Kind  EventKind
	Lock  *Lock
	Cycle Cycle
	Err   error
}

// Listener receives Events. A Listener that panics is recovered and logged;
// it never aborts delivery to the remaining listeners or back to the caller
// that triggered the event.
type Listener func(Event)

func wrapEvent(e events.Event) Event {
	return Event{Kind: e.Kind, Lock: wrapLock(e.Lock), Cycle: e.Cycle, Err: e.Err}
}
