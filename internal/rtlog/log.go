// Package rtlog holds the package-level logger shared by every internal
// package of this module. Every internal package calls Logger() rather than
// holding its own *slog.Logger, so a single SetLogger call at the root
// retargets acquire/release/GC logging everywhere at once.
package rtlog

import (
	"log/slog"
	"sync/atomic"
)

// override holds an operator-supplied logger once SetLogger has been called
// with a non-nil value; nil means "use the derived default". Stored as an
// atomic pointer so Logger() never takes a lock on its hot path.
var override atomic.Pointer[slog.Logger]

// cachedDefault memoizes the slog.Default()-derived logger so acquiring it
// doesn't allocate a new *slog.Logger (via With) on every log line. Reset to
// nil by SetLogger so a later slog.SetDefault elsewhere in the process is
// picked up the next time Logger() runs with no override installed.
var cachedDefault atomic.Pointer[slog.Logger]

// Logger returns the logger lock acquisition, release, and GC cycles should
// write through. Falls back to slog.Default() tagged with this module's
// component attribute until SetLogger installs something else. Safe for
// concurrent use from any goroutine.
func Logger() *slog.Logger {
	if l := override.Load(); l != nil {
		return l
	}
	if l := cachedDefault.Load(); l != nil {
		return l
	}
	return deriveDefault()
}

// deriveDefault builds this module's default logger and races to install it
// in cachedDefault, returning whichever value wins the race so concurrent
// first calls to Logger() agree on one instance.
func deriveDefault() *slog.Logger {
	l := slog.Default().With("component", "rwlock")
	if cachedDefault.CompareAndSwap(nil, l) {
		return l
	}
	if won := cachedDefault.Load(); won != nil {
		return won
	}
	return l
}

// SetLogger installs l as the logger every rwlock component logs through.
// Passing nil reverts to the slog.Default()-derived logger, re-derived (and
// re-cached) on the next Logger() call — the way to pick up a slog.SetDefault
// made after this module was already in use.
func SetLogger(l *slog.Logger) {
	override.Store(l)
	cachedDefault.Store(nil)
}
