package rwlock

import (
	"github.com/sharedlock/rwlock/internal/adapter"
	"github.com/sharedlock/rwlock/internal/memadapter"
	"github.com/sharedlock/rwlock/internal/sqlqueue"
)

// Adapter is the capability set a lock backend implements: acquire,
// release, releaseAll against a Lock obtained through a Locker. A Locker
// type-asserts an Adapter for the optional [SetupOptions]/gc capabilities
// it also supports.
//
// The two backends below — [NewMemoryAdapter] and [OpenSQLiteAdapter] — are
// the ones this module ships; both satisfy Adapter.
type Adapter = adapter.Adapter

// GCInput is the input to one garbage-collection cycle, passed to an
// adapter that supports GC.
type GCInput = adapter.GCInput

// GCResult reports the outcome of one GC cycle.
type GCResult = adapter.GCResult

// SetupOptions configures a backend's one-time idempotent initialization.
type SetupOptions = adapter.SetupOptions

// MemoryAdapter is the single-process reference backend: a mapping
// name -> ordered queue, held entirely in this process's memory. Useful for
// tests and for callers that don't need cross-process coordination.
type MemoryAdapter = memadapter.Adapter

// NewMemoryAdapter returns an empty [MemoryAdapter].
func NewMemoryAdapter() *MemoryAdapter {
	return memadapter.New(nil)
}

// SQLiteAdapter is the distributed backend: a shared SQLite database file
// plays the role of the external document store spec'd for production use.
// Any number of OS processes opening the same path observe the same queue
// state.
type SQLiteAdapter = sqlqueue.Adapter

// SQLiteAdapterOption configures [OpenSQLiteAdapter].
type SQLiteAdapterOption = sqlqueue.Option

// WithCollectionName sets the table-name prefix the adapter's two tables
// are derived from, the SQL analogue of spec §4.4's collectionName knob.
// Defaults to "locks". Useful for sharing one SQLite file across several
// independent lock spaces.
func WithCollectionName(name string) SQLiteAdapterOption {
	return sqlqueue.WithCollectionName(name)
}

// OpenSQLiteAdapter opens (creating if absent) the SQLite file at path,
// configured for multi-process access (WAL journaling, a busy-timeout
// retry budget for transient lock contention). Call [Locker.Setup] before
// first use to create the backing schema and indexes; call Close when done.
func OpenSQLiteAdapter(path string, opts ...SQLiteAdapterOption) (*SQLiteAdapter, error) {
	return sqlqueue.Open(path, opts...)
}
