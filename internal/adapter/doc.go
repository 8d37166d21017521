// Package adapter defines the contract a lock backend must satisfy: acquire,
// release, releaseAll, and the optional capabilities setup and gc.
//
// The coordinator is written against [Adapter] alone and type-asserts for
// [Setupper] and [GCer] so it degrades gracefully against a backend that
// implements only the required methods, matching spec §4.2's "polymorphic
// over the capability set {acquire, release, releaseAll} with optional
// {setup, gc}".
package adapter
