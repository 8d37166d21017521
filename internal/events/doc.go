// Package events implements the Locker's pub/sub bus: AcquiredLock,
// RejectedLock, ReleasedLock, GarbageCycle, and Error notifications to zero
// or more listeners.
//
// There is no third-party pub/sub library in the reference corpus suited to
// a single-process, in-memory fan-out this small; see DESIGN.md for why this
// one component stays on the standard library.
package events
