package rwlock

import (
	"fmt"
	"time"

	"github.com/sharedlock/rwlock/internal/lockstate"
)

// requirePositive panics if d <= 0 with a descriptive message. Mirrors the
// teacher's options.go: option values are typically compile-time constants,
// so an invalid value indicates a programmer error, not a runtime condition.
func requirePositive(name string, d time.Duration) {
	if d <= 0 {
		panic(fmt.Sprintf("rwlock: %s must be greater than 0, got %v", name, d))
	}
}

// lockerConfig holds configuration assembled from LockerOptions, mirroring
// the teacher's managerConfig.
type lockerConfig struct {
	gcIntervalMs int
}

// DefaultGCInterval is used by WithGC when no explicit interval is given,
// matching spec §4.5's "implementer default: 60000 if caller opts in without
// a value".
const DefaultGCInterval = 60 * time.Second

// LockerOption configures a Locker during construction via NewLocker.
type LockerOption func(*lockerConfig)

// WithGCInterval enables the GC driver at the given period. GC only
// actually runs if the adapter passed to NewLocker supports it (implements
// the optional gc capability); otherwise this option has no effect.
//
// Panics if d <= 0.
func WithGCInterval(d time.Duration) LockerOption {
	requirePositive("gc interval", d)
	return func(c *lockerConfig) {
		c.gcIntervalMs = int(d.Milliseconds())
	}
}

// WithGC enables the GC driver at [DefaultGCInterval].
func WithGC() LockerOption {
	return WithGCInterval(DefaultGCInterval)
}

// LockOptions configures one call to LockAsReader, LockAsWriter, or an
// EnsureTaskConcurrency helper.
type LockOptions struct {
	// AcquireTimeout, if positive, bounds how long the call waits for
	// admission before failing with an [AcquireTimeoutError]. Zero means
	// wait indefinitely (subject to ctx).
	AcquireTimeout time.Duration

	// PullInterval is how often the admission rule is re-checked while
	// waiting. Zero means [lockstate.DefaultPullIntervalMs] (25ms).
	PullInterval time.Duration
}

// toInternal converts public LockOptions to the internal representation,
// panicking on a negative duration the same way the teacher's With*
// constructors panic on invalid option values. Validation is otherwise
// deferred to first read, per spec §3.
func (o LockOptions) toInternal() lockstate.Options {
	if o.AcquireTimeout < 0 {
		panic(fmt.Sprintf("rwlock: AcquireTimeout must not be negative, got %v", o.AcquireTimeout))
	}
	if o.PullInterval < 0 {
		panic(fmt.Sprintf("rwlock: PullInterval must not be negative, got %v", o.PullInterval))
	}
	return lockstate.Options{
		AcquireTimeoutMs: int(o.AcquireTimeout.Milliseconds()),
		PullIntervalMs:   int(o.PullInterval.Milliseconds()),
	}
}
