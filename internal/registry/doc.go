// Package registry implements the LockRegistry: the process-local set of
// Locks the Locker currently considers live, from enqueue until terminal
// removal.
//
// Membership is by identity — the registry tracks *lockstate.Lock pointers,
// never structural equality — so a released Lock that happens to share a
// name and type with a still-live one is never confused with it.
package registry
