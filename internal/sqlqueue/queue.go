package sqlqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sharedlock/rwlock/internal/lockstate"
	"github.com/sharedlock/rwlock/internal/rtlog"
	"k8s.io/apimachinery/pkg/util/wait"
)

// enqueueRetries is how many additional attempts upsertAndPush makes after a
// duplicate-key failure, matching spec §4.4's "retried up to two additional
// times (because two racing upserts may both attempt insert)".
const enqueueRetries = 2

// queuedEntry is one row of the queue table, read back to evaluate admission.
type queuedEntry struct {
	id  string
	typ lockstate.Type
}

// Acquire enqueues lock into its name's queue row, then polls the admission
// rule every lock.Options().PullInterval() until lock is Acquired or stops
// being Acquiring. On exit without acquisition, the row is removed.
func (a *Adapter) Acquire(ctx context.Context, lock *lockstate.Lock) error {
	if err := a.upsertAndPush(ctx, lock); err != nil {
		return fmt.Errorf("sqlqueue: enqueue %s: %w", lock.ID(), err)
	}

	err := wait.PollUntilContextCancel(ctx, lock.Options().PullInterval(), true, func(pollCtx context.Context) (bool, error) {
		return a.tryAdmit(pollCtx, lock)
	})

	if lock.Status() != lockstate.Acquired {
		a.removeRow(context.WithoutCancel(ctx), lock.ID())
	}
	if err != nil {
		return fmt.Errorf("sqlqueue: acquire %s: %w", lock.ID(), err)
	}
	return nil
}

// upsertAndPush is the SQL analogue of spec §4.4's upsert-and-push: it
// advances the docs table's heartbeat monotonically (the $max behavior) and
// inserts the queue table's new row in one transaction. A failure reported
// as a UNIQUE constraint violation is retried up to enqueueRetries more
// times. The docs upsert already resolves two processes racing to create a
// brand-new name's document through ON CONFLICT, so the constraint that can
// fail here is the queue table's unique id index, which a retry of the same
// lock id does not clear.
func (a *Adapter) upsertAndPush(ctx context.Context, lock *lockstate.Lock) error {
	var lastErr error
	for attempt := 0; attempt <= enqueueRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
		}
		lastErr = a.upsertAndPushOnce(ctx, lock)
		if lastErr == nil {
			return nil
		}
		if !isDuplicateKeyError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d retries: %w", enqueueRetries, lastErr)
}

func (a *Adapter) upsertAndPushOnce(ctx context.Context, lock *lockstate.Lock) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	at := timeToNS(lock.CreatedAt())
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET at = MAX(at, excluded.at)`, a.docsTable),
		lock.Name(), at,
	); err != nil {
		return fmt.Errorf("upsert %s: %w", a.docsTable, err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (name, id, type, at) VALUES (?, ?, ?, ?)", a.queueTable),
		lock.Name(), lock.ID(), int(lock.Type()), at,
	); err != nil {
		return fmt.Errorf("insert %s: %w", a.queueTable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue tx: %w", err)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// tryAdmit evaluates the admission rule once by reading the current queue
// for lock.Name() with primary read-preference — in this single-file store
// that is simply "read the one database every process shares". It reports
// (true, nil) to stop polling, either because lock was just admitted or
// because it already stopped being Acquiring for an external reason (e.g. an
// acquire-timeout raced it).
func (a *Adapter) tryAdmit(ctx context.Context, lock *lockstate.Lock) (bool, error) {
	if lock.Status() != lockstate.Acquiring {
		return true, nil
	}

	entries, err := a.readQueue(ctx, lock.Name())
	if err != nil {
		return false, fmt.Errorf("reading queue for %s: %w", lock.Name(), err)
	}

	if !isAdmitted(entries, lock.ID(), lock.Type()) {
		return false, nil
	}
	if err := lock.MarkAcquired(); err != nil {
		return false, fmt.Errorf("marking admitted lock acquired: %w", err)
	}
	return true, nil
}

func (a *Adapter) readQueue(ctx context.Context, name string) ([]queuedEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, type FROM %s WHERE name = ? ORDER BY seq ASC", a.queueTable), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []queuedEntry
	for rows.Next() {
		var e queuedEntry
		var typ int
		if err := rows.Scan(&e.id, &typ); err != nil {
			return nil, err
		}
		e.typ = lockstate.Type(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// isAdmitted mirrors the in-memory adapter's rule exactly (spec §4.3): a
// Writer is admitted iff it is the queue head; a Reader is admitted iff no
// Writer precedes it.
func isAdmitted(entries []queuedEntry, targetID string, targetType lockstate.Type) bool {
	for _, e := range entries {
		if e.id == targetID {
			return true
		}
		if targetType == lockstate.Writer || e.typ == lockstate.Writer {
			return false
		}
	}
	return false
}

func (a *Adapter) removeRow(ctx context.Context, id string) {
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", a.queueTable), id); err != nil {
		// Best-effort: the row may already be gone (raced with Release or
		// GC collection), and the caller has already moved past this lock.
		rtlog.Logger().Debug("sqlqueue: best-effort queue row cleanup failed", "id", id, "err", err)
	}
}

// Release deletes lock's row from the queue table. Fails with ErrNotInQueue
// if the row is absent.
func (a *Adapter) Release(ctx context.Context, lock *lockstate.Lock) error {
	res, err := a.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", a.queueTable), lock.ID())
	if err != nil {
		return fmt.Errorf("sqlqueue: release %s: %w", lock.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlqueue: release %s: rows affected: %w", lock.ID(), err)
	}
	if n == 0 {
		return fmt.Errorf("sqlqueue: release %s: %w", lock.ID(), ErrNotInQueue)
	}
	if err := lock.MarkReleased(); err != nil {
		return fmt.Errorf("sqlqueue: release %s: %w", lock.ID(), err)
	}
	return nil
}

// ReleaseAll drops every queue entry this adapter owns, leaving the document
// heartbeat rows intact for the next user of each name.
func (a *Adapter) ReleaseAll(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", a.queueTable)); err != nil {
		return fmt.Errorf("sqlqueue: release all: %w", err)
	}
	return nil
}
