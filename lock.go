package rwlock

import (
	"time"

	"github.com/sharedlock/rwlock/internal/lockstate"
)

// LockType is the mode a Lock was requested in.
type LockType = lockstate.Type

const (
	// Reader grants shared access: any number of Readers may be Acquired
	// on the same name simultaneously, provided no Writer is Acquired.
	Reader = lockstate.Reader
	// Writer grants exclusive access: mutually exclusive with every other
	// Writer and every Reader on the same name.
	Writer = lockstate.Writer
)

// LockStatus is a Lock's position in the acquisition lifecycle.
type LockStatus = lockstate.Status

const (
	// Acquiring is the initial status: enqueued, waiting for admission.
	Acquiring = lockstate.Acquiring
	// Acquired means the Lock currently holds the name in its Type's mode.
	Acquired = lockstate.Acquired
	// Releasing means Release has been called and is in flight.
	Releasing = lockstate.Releasing
	// Released is terminal: the Lock no longer holds anything.
	Released = lockstate.Released
	// Rejected is terminal: the Lock never acquired. Lock.Reason explains
	// why.
	Rejected = lockstate.Rejected
)

// Lock is a handle to one requested lock instance: identity, the requested
// name and mode, and timing telemetry. Obtained from [Locker.LockAsReader]
// or [Locker.LockAsWriter]; released via [Locker.Release].
//
// Safe for concurrent use.
type Lock struct {
	l *lockstate.Lock
}

// wrapLock wraps an internal *lockstate.Lock for the public surface. Returns
// nil if l is nil, so event payloads for kinds that don't carry a lock
// round-trip cleanly.
func wrapLock(l *lockstate.Lock) *Lock {
	if l == nil {
		return nil
	}
	return &Lock{l: l}
}

// ID returns the process-unique opaque identifier assigned at construction.
func (lk *Lock) ID() string { return lk.l.ID() }

// Name returns the coordination key this Lock was requested on.
func (lk *Lock) Name() string { return lk.l.Name() }

// Type returns Reader or Writer.
func (lk *Lock) Type() LockType { return lk.l.Type() }

// Status returns the current status.
func (lk *Lock) Status() LockStatus { return lk.l.Status() }

// Reason returns the rejection cause, set only once the Lock is Rejected.
func (lk *Lock) Reason() error { return lk.l.Reason() }

// CreatedAt returns the construction timestamp.
func (lk *Lock) CreatedAt() time.Time { return lk.l.CreatedAt() }

// SettledAt returns the timestamp the Lock entered Acquired or Rejected,
// and whether it has settled yet.
func (lk *Lock) SettledAt() (time.Time, bool) { return lk.l.SettledAt() }

// ReleasedAt returns the timestamp the Lock entered Released, and whether
// it has been released yet.
func (lk *Lock) ReleasedAt() (time.Time, bool) { return lk.l.ReleasedAt() }

// SettledIn returns SettledAt - CreatedAt, and false if not yet settled.
func (lk *Lock) SettledIn() (time.Duration, bool) { return lk.l.SettledIn() }

// AcquiredFor returns ReleasedAt - SettledAt, and false if not yet released.
func (lk *Lock) AcquiredFor() (time.Duration, bool) { return lk.l.AcquiredFor() }
