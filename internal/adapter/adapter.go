package adapter

import (
	"context"
	"time"

	"github.com/sharedlock/rwlock/internal/lockstate"
	"github.com/sharedlock/rwlock/internal/registry"
)

// Adapter is the required capability set every lock backend implements.
type Adapter interface {
	// Acquire blocks until lock reaches Acquired, or returns without having
	// acquired if lock stops being Acquiring for any other reason (e.g. an
	// acquire-timeout raced it out of the queue). On success it transitions
	// lock to Acquired itself. An error means the backend failed to enqueue
	// or poll lock at all; it does not necessarily mean lock never acquired.
	Acquire(ctx context.Context, lock *lockstate.Lock) error

	// Release removes lock's store presence. It fails if the entry is no
	// longer present (double-release, or already collected by GC).
	Release(ctx context.Context, lock *lockstate.Lock) error

	// ReleaseAll drops every entry this adapter owns, regardless of
	// registry state.
	ReleaseAll(ctx context.Context) error
}

// SetupOptions configures a Setupper's one-time initialization.
type SetupOptions struct {
	// GCIntervalMs is the interval GC will run at, or 0 if GC is disabled.
	// When non-zero, a Setupper must configure any TTL machinery gc
	// depends on (spec §4.4's TTL index, sized off this interval).
	GCIntervalMs int
}

// Setupper is the optional idempotent-initialization capability.
type Setupper interface {
	// Setup prepares backing structures (tables, indexes, files). Must be
	// safe to call more than once.
	Setup(ctx context.Context, opts SetupOptions) error
}

// GCInput is the input to one garbage-collection cycle.
type GCInput struct {
	// Registry holds the Locks this process currently considers live;
	// their heartbeats are refreshed, never collected.
	Registry *registry.Registry
	// GCIntervalMs is the configured GC period.
	GCIntervalMs int
	// At is the cycle's reference time.
	At time.Time
	// StaleAt is the cutoff: entries heartbeating before this are
	// collected. Always At - 2*GCIntervalMs.
	StaleAt time.Time
}

// GCResult reports the outcome of one GC cycle.
type GCResult struct {
	CollectedCount int
	RefreshedCount int
}

// GCer is the optional garbage-collection capability.
type GCer interface {
	// GC refreshes heartbeats for every lock in in.Registry and collects
	// entries whose heartbeat is older than in.StaleAt.
	GC(ctx context.Context, in GCInput) (GCResult, error)
}
