package sqlqueue

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/gofrs/flock"
	"github.com/sharedlock/rwlock/internal/adapter"
	"github.com/sharedlock/rwlock/internal/rtlog"
	"github.com/sharedlock/rwlock/internal/sentinel"

	// Register the pure-Go SQLite driver (no CGO required), same choice the
	// teacher makes for its own ephemeral kine database.
	_ "modernc.org/sqlite"
)

// ErrNotInQueue is returned by Release when the lock's row is no longer
// present (already released, or collected by GC).
const ErrNotInQueue = sentinel.Error("lock is not in the queue anymore")

// ErrSetupFailed wraps failures from Setup's schema/index creation.
const ErrSetupFailed = sentinel.Error("distributed adapter setup failed")

// busyTimeoutMs bounds how long a write waits for SQLite's write lock before
// failing, matching the teacher's purge.go tolerance for transient
// SQLITE_BUSY under concurrent access.
const busyTimeoutMs = 5000

var _ adapter.Adapter = (*Adapter)(nil)
var _ adapter.Setupper = (*Adapter)(nil)
var _ adapter.GCer = (*Adapter)(nil)

// defaultCollectionName is spec §4.4's "locks" default for the adapter's
// configuration knob of the same name.
const defaultCollectionName = "locks"

// collectionNamePattern bounds collection to what's safe to splice into a
// CREATE TABLE/INDEX statement: table names can't be bind parameters, so the
// value is validated up front instead.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Option configures Open. A setting no Option overrides keeps its default
// (collection name "locks").
type Option func(*openConfig)

type openConfig struct {
	collection string
}

// WithCollectionName sets the table-name prefix this Adapter's two tables
// are derived from (collection+"_docs", collection+"_queue") — the SQL
// analogue of spec §4.4's collectionName, which names a single document
// store collection. Useful for multiple independent lock spaces sharing one
// SQLite file. Defaults to "locks".
func WithCollectionName(name string) Option {
	return func(c *openConfig) { c.collection = name }
}

// Adapter is the distributed (document-store) lock adapter, backed by a
// SQLite file at Path. Multiple Adapter values — in this process or another
// — pointed at the same Path and collection observe the same queue state.
type Adapter struct {
	path       string
	db         *sql.DB
	docsTable  string
	queueTable string
}

// Open opens (creating if absent) the SQLite file at path and configures it
// for multi-process access: WAL journaling and a generous busy timeout, the
// same pragma ordering the teacher's openPurgeHandle uses.
//
// spec §4.4's serverVersion knob is deliberately not threaded through: it
// exists for a document store that speaks more than one wire dialect across
// versions, and this adapter has exactly one dialect (SQLite via
// modernc.org/sqlite), so there is nothing for it to select between.
func Open(path string, opts ...Option) (*Adapter, error) {
	cfg := openConfig{collection: defaultCollectionName}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !collectionNamePattern.MatchString(cfg.collection) {
		return nil, fmt.Errorf("sqlqueue: invalid collection name %q", cfg.collection)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busyTimeoutMs,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlqueue: open %s: %w", path, err)
	}

	// A single connection serializes every statement through SQLite's own
	// writer lock instead of database/sql's pool fanning out across
	// multiple connections, each of which would need its own busy-timeout
	// retry dance. WAL still lets other processes' connections read and
	// write concurrently against the same file.
	db.SetMaxOpenConns(1)

	return &Adapter{
		path:       path,
		db:         db,
		docsTable:  cfg.collection + "_docs",
		queueTable: cfg.collection + "_queue",
	}, nil
}

// Close releases the underlying database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

const (
	schemaDocsFmt = `
CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	at   INTEGER NOT NULL
)`
	schemaQueueFmt = `
CREATE TABLE IF NOT EXISTS %s (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	id   TEXT NOT NULL,
	type INTEGER NOT NULL,
	at   INTEGER NOT NULL
)`
)

// idxQueueID returns this Adapter's unique index name on queueTable(id), etc.
// Index names are derived from the table names so two Adapters opened
// against the same file with different collection names never collide.
func (a *Adapter) idxQueueID() string      { return a.queueTable + "_id_idx" }
func (a *Adapter) idxQueueNameSeq() string { return a.queueTable + "_name_seq_idx" }
func (a *Adapter) idxAt() string           { return a.docsTable + "_at_idx" }

// Setup creates the backing tables and indexes, tolerating "already exists".
// It is guarded by a sidecar file lock so concurrent first-use by multiple
// processes cannot race on index creation — SQLite's own locking is oriented
// around row/table data, not schema-migration ordering, so it isn't relied on
// for this race.
//
// When opts.GCIntervalMs > 0, an index on the docs table's at column is
// (re)created; otherwise any such index is dropped with the other stray
// indexes. SQLite has no native per-row TTL expiry, unlike the TTL index a
// real document store would use here. The GC cycle's collect phase (see
// gc.go) deletes stale rows from the queue table only; rows of the docs
// table are never deleted by this adapter, so a name's document row stays
// in place after its queue empties.
func (a *Adapter) Setup(ctx context.Context, opts adapter.SetupOptions) error {
	fl := flock.New(a.path + ".setup.lock")
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("sqlqueue: acquiring setup lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("sqlqueue: setup lock %s not acquired: %w", fl.Path(), ErrSetupFailed)
	}
	defer func() {
		if cerr := fl.Close(); cerr != nil {
			rtlog.Logger().Debug("failed to release setup file lock", "path", fl.Path(), "err", cerr)
		}
	}()

	if err := a.createSchema(ctx); err != nil {
		return fmt.Errorf("sqlqueue: create schema: %w: %v", ErrSetupFailed, err)
	}
	if err := a.reconcileIndexes(ctx, opts); err != nil {
		return fmt.Errorf("sqlqueue: reconcile indexes: %w: %v", ErrSetupFailed, err)
	}
	return nil
}

func (a *Adapter) createSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(schemaDocsFmt, a.docsTable)); err != nil {
		return fmt.Errorf("create %s: %w", a.docsTable, err)
	}
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(schemaQueueFmt, a.queueTable)); err != nil {
		return fmt.Errorf("create %s: %w", a.queueTable, err)
	}
	return nil
}

// reconcileIndexes drops and recreates the indexes this adapter owns, then
// drops any other non-primary index present on its tables — spec §4.4's
// "ensures each index exists (dropping and recreating on conflict), and
// drops any other non-primary index present".
func (a *Adapter) reconcileIndexes(ctx context.Context, opts adapter.SetupOptions) error {
	idxQueueID, idxQueueNameSeq, idxAt := a.idxQueueID(), a.idxQueueNameSeq(), a.idxAt()
	owned := map[string]string{
		idxQueueID:      "CREATE UNIQUE INDEX " + idxQueueID + " ON " + a.queueTable + "(id)",
		idxQueueNameSeq: "CREATE INDEX " + idxQueueNameSeq + " ON " + a.queueTable + "(name, seq)",
	}
	if opts.GCIntervalMs > 0 {
		owned[idxAt] = "CREATE INDEX " + idxAt + " ON " + a.docsTable + "(at)"
	}

	for name, createStmt := range owned {
		if _, err := a.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
		if _, err := a.db.ExecContext(ctx, createStmt); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'index' AND tbl_name IN (?, ?)
		   AND name NOT LIKE 'sqlite_autoindex%'`, a.docsTable, a.queueTable)
	if err != nil {
		return fmt.Errorf("list existing indexes: %w", err)
	}
	var stray []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck,gosec // best-effort cleanup on scan failure
			return fmt.Errorf("scan index name: %w", err)
		}
		if _, isOwned := owned[name]; !isOwned {
			stray = append(stray, name)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate existing indexes: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close index rows: %w", err)
	}

	for _, name := range stray {
		if _, err := a.db.ExecContext(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop stray index %s: %w", name, err)
		}
	}
	return nil
}

// timeToNS converts t to the INTEGER representation stored in the docs and
// queue tables' at columns, clamping negative values (t before the Unix epoch) to 0
// rather than wrapping.
func timeToNS(t time.Time) int64 {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return ns
}
