// Package sqlqueue implements the distributed adapter: a document-store
// queue protocol (spec §4.4) backed by a SQLite database file shared by every
// process pointed at the same path, playing the role of the external shared
// store spec.md specifies.
//
// One row in the docs table per lock name carries the document-level
// heartbeat; the queue table holds the ordered per-name queue entries an
// admission check scans. Table names are derived from Option's collection
// name (spec §4.4's collectionName, default "locks"), so multiple
// independent lock spaces can share one SQLite file. Both tables are guarded
// by SQLite's own locking (WAL mode, a single writer connection) rather than
// application-level transactions spanning multiple statements, since every
// mutation here is already a single statement or a tightly-scoped
// transaction.
package sqlqueue
