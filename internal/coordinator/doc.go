// Package coordinator implements the Locker: the per-process orchestrator
// that turns an Adapter and a LockRegistry into the acquire/release API
// re-exported at the module root. It owns acquire-timeout enforcement,
// event emission, and the self-rescheduling GC ticker.
package coordinator
