package coordinator

import (
	"fmt"

	"github.com/sharedlock/rwlock/internal/sentinel"
)

// ErrAcquireTimeout is wrapped by AcquireTimeoutError when an acquire-timeout
// fires before admission.
const ErrAcquireTimeout = sentinel.Error("acquire timed out before admission")

// ErrLockerClosed is returned by LockAsReader/LockAsWriter after Close.
const ErrLockerClosed = sentinel.Error("locker is closed")

// ErrGCOverlap is wrapped by the Error event emitted when a GC cycle is
// requested (by the ticker or an on-demand call) while one is already
// running.
const ErrGCOverlap = sentinel.Error("gc cycle already running")

// LockError is a failure tied to a specific lock attempt: an adapter error
// during acquire or release that isn't better described as a more specific
// kind below.
type LockError struct {
	LockID string
	Name   string
	Err    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s %q: %v", e.LockID, e.Name, e.Err)
}

func (e *LockError) Unwrap() error { return e.Err }

// AcquireTimeoutError is returned by LockAsReader/LockAsWriter when the
// configured AcquireTimeoutMs elapses before admission.
type AcquireTimeoutError struct {
	LockID string
	Name   string
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("lock %s %q: %v", e.LockID, e.Name, ErrAcquireTimeout)
}

func (e *AcquireTimeoutError) Unwrap() error { return ErrAcquireTimeout }

// WorkflowError reports an illegal Lock state transition attempted by the
// coordinator itself (always an internal error, never caused by a caller).
type WorkflowError struct {
	LockID string
	Err    error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("lock %s: %v", e.LockID, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// AdapterError is an adapter-level failure not tied to a single lock, e.g.
// setup, releaseAll, or gc.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
