package sqlqueue

import (
	"context"
	"fmt"

	"github.com/sharedlock/rwlock/internal/adapter"
	"golang.org/x/sync/errgroup"
)

// GC runs the collect and refresh phases of spec §4.4 concurrently — "may
// run in parallel" — using errgroup the same way the teacher's cleanup.go
// fans out independent cleanup steps.
func (a *Adapter) GC(ctx context.Context, in adapter.GCInput) (adapter.GCResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var result adapter.GCResult
	g.Go(func() error {
		n, err := a.collectStale(gctx, timeToNS(in.StaleAt))
		if err != nil {
			return fmt.Errorf("collect: %w", err)
		}
		result.CollectedCount = n
		return nil
	})
	g.Go(func() error {
		n, err := a.refreshLive(gctx, in, timeToNS(in.At))
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		result.RefreshedCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return adapter.GCResult{}, fmt.Errorf("sqlqueue: gc: %w", err)
	}
	return result, nil
}

// collectStale removes every queue entry whose heartbeat is older than
// staleAtNS, returning the number of distinct names affected — the closest
// SQL analogue of the document-store's "documents modified" count from a
// bulk $pull across per-name arrays.
func (a *Adapter) collectStale(ctx context.Context, staleAtNS int64) (int, error) {
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("SELECT DISTINCT name FROM %s WHERE at < ?", a.queueTable), staleAtNS)
	if err != nil {
		return 0, fmt.Errorf("select stale names: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck,gosec // best-effort cleanup on scan failure
			return 0, fmt.Errorf("scan stale name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate stale names: %w", err)
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("close stale name rows: %w", err)
	}
	if len(names) == 0 {
		return 0, nil
	}

	if _, err := a.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE at < ?", a.queueTable), staleAtNS); err != nil {
		return 0, fmt.Errorf("delete stale rows: %w", err)
	}
	return len(names), nil
}

// refreshLive advances the heartbeat of every row belonging to a lock in
// in.Registry to atNS, monotonically (MAX rather than an unconditional SET,
// mirroring the document store's $max — safe to reorder against a
// concurrent, slightly-newer refresh). Returns the count of locks whose row
// was actually found and advanced.
func (a *Adapter) refreshLive(ctx context.Context, in adapter.GCInput, atNS int64) (int, error) {
	live := in.Registry.All()
	if len(live) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin refresh tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	refreshed := 0
	for _, l := range live {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET at = MAX(at, ?) WHERE id = ?", a.queueTable), atNS, l.ID())
		if err != nil {
			return 0, fmt.Errorf("refresh %s: %w", l.ID(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("refresh %s: rows affected: %w", l.ID(), err)
		}
		if n > 0 {
			refreshed++
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET at = MAX(at, ?) WHERE name = ?", a.docsTable), atNS, l.Name()); err != nil {
			return 0, fmt.Errorf("refresh document %s: %w", l.Name(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit refresh tx: %w", err)
	}
	return refreshed, nil
}
