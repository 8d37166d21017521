package lockstate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sharedlock/rwlock/internal/sentinel"
	"k8s.io/utils/clock"
)

// ErrIllegalTransition is wrapped by the error returned when a caller
// attempts a state transition outside the edge set in allowedFrom.
const ErrIllegalTransition = sentinel.Error("illegal lock state transition")

// Type is the mode a Lock is requested in.
type Type uint8

const (
	// Reader grants shared access: any number of Readers may be Acquired
	// on the same name simultaneously, provided no Writer is Acquired.
	Reader Type = iota
	// Writer grants exclusive access: mutually exclusive with every other
	// Writer and every Reader on the same name.
	Writer
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case Reader:
		return "reader"
	case Writer:
		return "writer"
	default:
		return fmt.Sprintf("lockstate.Type(%d)", uint8(t))
	}
}

// Status is a Lock's position in the acquisition lifecycle.
type Status uint8

const (
	// Acquiring is the initial status: the Lock has been enqueued and is
	// waiting for the admission rule to allow it through.
	Acquiring Status = iota
	// Acquired means the Lock currently holds the name in its Type's mode.
	Acquired
	// Releasing means Release has been called and the adapter's release
	// is in flight.
	Releasing
	// Released is terminal: the Lock no longer holds anything.
	Released
	// Rejected is terminal: the Lock never acquired (timeout or adapter
	// failure). Reason explains why.
	Rejected
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Acquired:
		return "acquired"
	case Releasing:
		return "releasing"
	case Released:
		return "released"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("lockstate.Status(%d)", uint8(s))
	}
}

// settled reports whether the status has a settledAt (§3 invariant:
// settledAt exists iff status is one of these four).
func (s Status) settled() bool {
	switch s {
	case Acquired, Rejected, Releasing, Released:
		return true
	default:
		return false
	}
}

// allowedFrom is the DAG of legal transitions from spec §4.1. Anything not
// listed here is refused.
var allowedFrom = map[Status][]Status{
	Acquiring: {Acquired, Rejected},
	Acquired:  {Releasing, Released},
	Releasing: {Released},
}

// Options holds the per-lock parameters from spec §3/§6. Zero values mean
// "absent" (AcquireTimeoutMs) or "use the default" (PullIntervalMs).
// Validation is deferred to first read, matching spec §3's "validated on
// first read": a negative value is a programmer error and panics there,
// not at construction, since Options is typically built from a literal at
// the call site.
type Options struct {
	AcquireTimeoutMs int
	PullIntervalMs   int
}

// DefaultPullIntervalMs is used when Options.PullIntervalMs is zero.
const DefaultPullIntervalMs = 25

// AcquireTimeout returns the configured acquire timeout and true, or
// (0, false) if none was set. Panics if AcquireTimeoutMs is negative.
func (o Options) AcquireTimeout() (time.Duration, bool) {
	if o.AcquireTimeoutMs == 0 {
		return 0, false
	}
	if o.AcquireTimeoutMs < 0 {
		panic(fmt.Sprintf("rwlock: acquireTimeoutMs must be greater than 0, got %d", o.AcquireTimeoutMs))
	}
	return time.Duration(o.AcquireTimeoutMs) * time.Millisecond, true
}

// PullInterval returns the configured poll interval, defaulting to
// DefaultPullIntervalMs when unset. Panics if PullIntervalMs is negative.
func (o Options) PullInterval() time.Duration {
	if o.PullIntervalMs == 0 {
		return DefaultPullIntervalMs * time.Millisecond
	}
	if o.PullIntervalMs < 0 {
		panic(fmt.Sprintf("rwlock: pullIntervalMs must be greater than 0, got %d", o.PullIntervalMs))
	}
	return time.Duration(o.PullIntervalMs) * time.Millisecond
}

// Lock is one requested lock instance: identity, parameters, state, and
// timing telemetry. The zero value is not valid; construct with [NewReader]
// or [NewWriter].
//
// Safe for concurrent use. Status transitions and timestamp reads are
// serialized by an internal mutex, matching the per-entity locking style
// used throughout the teacher's instance/pool types.
type Lock struct {
	id   string
	name string
	typ  Type
	opts Options

	clock clock.PassiveClock

	mu         sync.Mutex
	status     Status
	reason     error
	createdAt  time.Time
	settledAt  time.Time
	releasedAt time.Time
}

// New constructs a Lock in the Acquiring status. c may be nil, in which case
// [clock.RealClock] is used; tests inject a fake clock to make
// settledAt/releasedAt deterministic.
func New(name string, typ Type, opts Options, c clock.PassiveClock) *Lock {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Lock{
		id:        newID(),
		name:      name,
		typ:       typ,
		opts:      opts,
		clock:     c,
		status:    Acquiring,
		createdAt: c.Now(),
	}
}

// NewReader constructs a Lock requesting shared access to name.
func NewReader(name string, opts Options, c clock.PassiveClock) *Lock {
	return New(name, Reader, opts, c)
}

// NewWriter constructs a Lock requesting exclusive access to name.
func NewWriter(name string, opts Options, c clock.PassiveClock) *Lock {
	return New(name, Writer, opts, c)
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is a fatal platform error; panic mirrors
		// the teacher's fail-fast stance on unrecoverable construction errors.
		panic(fmt.Sprintf("rwlock: reading random lock id: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// ID returns the process-unique opaque identifier assigned at construction.
func (l *Lock) ID() string { return l.id }

// Name returns the coordination key this Lock was requested on.
func (l *Lock) Name() string { return l.name }

// Type returns Reader or Writer.
func (l *Lock) Type() Type { return l.typ }

// Options returns the options the Lock was constructed with.
func (l *Lock) Options() Options { return l.opts }

// Status returns the current status.
func (l *Lock) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Reason returns the rejection cause, set only once the Lock is Rejected.
func (l *Lock) Reason() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reason
}

// CreatedAt returns the construction timestamp.
func (l *Lock) CreatedAt() time.Time { return l.createdAt }

// SettledAt returns the timestamp the Lock entered Acquired or Rejected,
// and whether it has settled yet.
func (l *Lock) SettledAt() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settledAt, !l.settledAt.IsZero()
}

// ReleasedAt returns the timestamp the Lock entered Released, and whether
// it has been released yet.
func (l *Lock) ReleasedAt() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releasedAt, !l.releasedAt.IsZero()
}

// SettledIn returns settledAt - createdAt, and false if not yet settled.
func (l *Lock) SettledIn() (time.Duration, bool) {
	settledAt, ok := l.SettledAt()
	if !ok {
		return 0, false
	}
	return settledAt.Sub(l.createdAt), true
}

// AcquiredFor returns releasedAt - settledAt, and false if not yet released.
func (l *Lock) AcquiredFor() (time.Duration, bool) {
	l.mu.Lock()
	settledAt, releasedAt := l.settledAt, l.releasedAt
	l.mu.Unlock()
	if settledAt.IsZero() || releasedAt.IsZero() {
		return 0, false
	}
	return releasedAt.Sub(settledAt), true
}

// IsLive reports whether the Lock is still tracked by a LockRegistry, i.e.
// its status is Acquiring, Acquired, or Releasing (spec §8 invariant 7).
func (l *Lock) IsLive() bool {
	switch l.Status() {
	case Acquiring, Acquired, Releasing:
		return true
	default:
		return false
	}
}

// transitionLocked moves the Lock to target if the edge is legal, stamping
// settledAt/releasedAt as required. Must be called with l.mu held.
func (l *Lock) transitionLocked(target Status) error {
	for _, allowed := range allowedFrom[l.status] {
		if allowed == target {
			if (target == Acquired || target == Rejected) && l.settledAt.IsZero() {
				l.settledAt = l.clock.Now()
			}
			if target == Released {
				if l.settledAt.IsZero() {
					// Internal error per spec §4.1: Released always implies
					// settledAt already exists.
					panic(fmt.Sprintf("rwlock: lock %s entered Released without a settledAt", l.id))
				}
				l.releasedAt = l.clock.Now()
			}
			l.status = target
			return nil
		}
	}
	return fmt.Errorf("lock %s: cannot transition %s -> %s: %w", l.id, l.status, target, ErrIllegalTransition)
}

// MarkAcquired transitions Acquiring -> Acquired. Called by an Adapter once
// the admission rule allows the Lock through.
func (l *Lock) MarkAcquired() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(Acquired)
}

// Reject sets reason and transitions Acquiring -> Rejected. Must be called
// from Acquiring, per spec §4.1.
func (l *Lock) Reject(reason error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transitionLocked(Rejected); err != nil {
		return err
	}
	l.reason = reason
	return nil
}

// MarkReleasing transitions Acquired -> Releasing.
func (l *Lock) MarkReleasing() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(Releasing)
}

// MarkReleased transitions Acquired|Releasing -> Released.
func (l *Lock) MarkReleased() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(Released)
}
