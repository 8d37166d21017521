package rwlock

import (
	"github.com/sharedlock/rwlock/internal/coordinator"
	"github.com/sharedlock/rwlock/internal/lockstate"
	"github.com/sharedlock/rwlock/internal/memadapter"
	"github.com/sharedlock/rwlock/internal/sqlqueue"
)

// Sentinel errors for error inspection with errors.Is. Declared as consts
// backed by internal/sentinel.Error, re-exported here the same way the
// teacher's errors.go re-exports core.Err* constants.
const (
	// ErrIllegalTransition is wrapped by WorkflowError when a Lock is asked
	// to transition outside the edge set of the state machine.
	ErrIllegalTransition = lockstate.ErrIllegalTransition

	// ErrAcquireTimeout is wrapped by AcquireTimeoutError when the
	// configured acquire timeout fires before admission.
	ErrAcquireTimeout = coordinator.ErrAcquireTimeout

	// ErrLockerClosed is returned by LockAsReader/LockAsWriter after Close.
	ErrLockerClosed = coordinator.ErrLockerClosed

	// ErrGCOverlap is wrapped by the Error event emitted when a GC cycle
	// fires while a previous one is still running.
	ErrGCOverlap = coordinator.ErrGCOverlap

	// ErrNotInQueue is the adapter-level error returned by a direct
	// Release call on a lock whose entry is no longer present (already
	// released, or collected by GC). Both the in-memory and SQLite-backed
	// adapters return the same sentinel text; Locker.Release never surfaces
	// it, since it consults registry membership first (spec §7).
	ErrNotInQueue = memadapter.ErrNotInQueue

	// ErrSetupFailed wraps failures from the distributed adapter's Setup.
	ErrSetupFailed = sqlqueue.ErrSetupFailed
)

// LockError is a failure tied to a specific lock attempt: an adapter error
// during acquire or release that isn't better described by a more specific
// type below. Unwraps to the adapter's underlying cause.
type LockError = coordinator.LockError

// AcquireTimeoutError is returned by LockAsReader/LockAsWriter when the
// configured AcquireTimeout elapses before admission. Unwraps to
// [ErrAcquireTimeout].
type AcquireTimeoutError = coordinator.AcquireTimeoutError

// WorkflowError reports an illegal Lock state transition. This is always an
// internal error, never caused directly by a caller. Unwraps to
// [ErrIllegalTransition].
type WorkflowError = coordinator.WorkflowError

// AdapterError is an adapter-level failure not tied to a single lock, e.g.
// setup, releaseAll, or a GC cycle.
type AdapterError = coordinator.AdapterError
