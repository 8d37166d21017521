// Package rwlock provides a distributed readers-writer lock coordinated
// through an external shared store. Callers request named locks in Reader
// (shared) or Writer (exclusive) mode; the classical RW semantics hold
// across an entire fleet of independent processes: any number of concurrent
// Readers on a name, but a Writer is mutually exclusive with every other
// Writer and every Reader on that name.
//
// Locks are advisory and cooperative: every participant must go through a
// Locker bound to the same shared backend. They carry no data payload.
//
// # Basic usage
//
//	adp, err := rwlock.OpenSQLiteAdapter("/var/run/myapp/locks.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adp.Close()
//
//	locker := rwlock.NewLocker(adp, rwlock.WithGCInterval(time.Minute))
//	if err := locker.Setup(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer locker.Close()
//
//	lock, err := locker.LockAsWriter(ctx, "my-resource", rwlock.LockOptions{
//	    AcquireTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer locker.Release(ctx, lock)
//
// # Task-scoped locking
//
// [Locker.EnsureWritingTaskConcurrency] and [Locker.EnsureReadingTaskConcurrency]
// acquire, run a task, and release in a finally-block, returning the task's
// result:
//
//	total, err := rwlock.EnsureWritingTaskConcurrency(ctx, locker, "ledger",
//	    rwlock.LockOptions{}, func(ctx context.Context) (int, error) {
//	        return updateLedger(ctx)
//	    })
//
// # Backends
//
// [NewMemoryAdapter] is a single-process reference backend, useful for tests
// and for callers that don't need cross-process coordination.
// [OpenSQLiteAdapter] is the distributed backend: a shared SQLite database
// file plays the role of the external document store spec'd for production
// use, admitting any number of OS processes pointed at the same path into
// the same FIFO queue per lock name.
package rwlock
