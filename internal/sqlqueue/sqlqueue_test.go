package sqlqueue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sharedlock/rwlock/internal/adapter"
	"github.com/sharedlock/rwlock/internal/lockstate"
	"github.com/sharedlock/rwlock/internal/registry"
)

const testPullIntervalMs = 5

func openTestAdapter(t *testing.T, dbPath string) *Adapter {
	t.Helper()
	a, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%s) error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return a
}

func acquireAsync(t *testing.T, a *Adapter, lock *lockstate.Lock) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- a.Acquire(ctx, lock)
	}()
	return done
}

func waitAcquired(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Acquire returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Acquire to complete")
	}
}

func assertStillPending(t *testing.T, done <-chan error, lock *lockstate.Lock) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("Acquire for %s returned early (err=%v), expected it to still be blocked", lock.ID(), err)
	case <-time.After(75 * time.Millisecond):
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)

	ctx := context.Background()
	if err := a.Setup(ctx, adapter.SetupOptions{GCIntervalMs: 500}); err != nil {
		t.Fatalf("first Setup() error: %v", err)
	}
	if err := a.Setup(ctx, adapter.SetupOptions{GCIntervalMs: 500}); err != nil {
		t.Fatalf("second Setup() error: %v", err)
	}
}

func TestWriterSerializesAcrossSeparateConnections(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	setup := openTestAdapter(t, dbPath)
	if err := setup.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	// Two Adapter values over distinct *sql.DB handles on the same file
	// stand in for two separate processes sharing the store.
	a1 := openTestAdapter(t, dbPath)
	a2 := openTestAdapter(t, dbPath)

	w1 := lockstate.NewWriter("L", lockstate.Options{PullIntervalMs: testPullIntervalMs}, nil)
	w2 := lockstate.NewWriter("L", lockstate.Options{PullIntervalMs: testPullIntervalMs}, nil)

	waitAcquired(t, acquireAsync(t, a1, w1))

	done2 := acquireAsync(t, a2, w2)
	assertStillPending(t, done2, w2)

	if err := a1.Release(context.Background(), w1); err != nil {
		t.Fatalf("Release(w1) error: %v", err)
	}
	waitAcquired(t, done2)
}

func TestReadersAdmittedConcurrently(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)
	if err := a.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	readers := make([]*lockstate.Lock, 4)
	dones := make([]<-chan error, 4)
	for i := range readers {
		readers[i] = lockstate.NewReader("L", lockstate.Options{PullIntervalMs: testPullIntervalMs}, nil)
		dones[i] = acquireAsync(t, a, readers[i])
	}
	for i := range readers {
		waitAcquired(t, dones[i])
	}
}

func TestWriterBlocksSubsequentReaders(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)
	if err := a.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	w := lockstate.NewWriter("L", lockstate.Options{PullIntervalMs: testPullIntervalMs}, nil)
	waitAcquired(t, acquireAsync(t, a, w))

	r := lockstate.NewReader("L", lockstate.Options{PullIntervalMs: testPullIntervalMs}, nil)
	doneR := acquireAsync(t, a, r)
	assertStillPending(t, doneR, r)

	if err := a.Release(context.Background(), w); err != nil {
		t.Fatalf("Release(w) error: %v", err)
	}
	waitAcquired(t, doneR)
}

func TestReleaseUnknownLockFails(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)
	if err := a.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	l := lockstate.NewReader("L", lockstate.Options{}, nil)
	err := a.Release(context.Background(), l)
	if !errors.Is(err, ErrNotInQueue) {
		t.Fatalf("Release() error = %v, want wrapping ErrNotInQueue", err)
	}
}

func TestReleaseAllDropsQueueKeepsDocuments(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)
	if err := a.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	l1 := lockstate.NewReader("L", lockstate.Options{}, nil)
	waitAcquired(t, acquireAsync(t, a, l1))

	if err := a.ReleaseAll(context.Background()); err != nil {
		t.Fatalf("ReleaseAll() error: %v", err)
	}

	var docCount int
	if err := a.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = ?", a.docsTable), "L").Scan(&docCount); err != nil {
		t.Fatalf("querying %s: %v", a.docsTable, err)
	}
	if docCount != 1 {
		t.Fatalf("%s row count = %d, want 1 (ReleaseAll must not drop documents)", a.docsTable, docCount)
	}

	var queueCount int
	if err := a.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", a.queueTable)).Scan(&queueCount); err != nil {
		t.Fatalf("querying %s: %v", a.queueTable, err)
	}
	if queueCount != 0 {
		t.Fatalf("%s row count = %d, want 0 after ReleaseAll", a.queueTable, queueCount)
	}
}

func TestGCCollectsStaleAndRefreshesLive(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)
	if err := a.Setup(context.Background(), adapter.SetupOptions{GCIntervalMs: 500}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	live := lockstate.NewReader("L", lockstate.Options{}, nil)
	orphan := lockstate.NewReader("L", lockstate.Options{}, nil)

	ctx := context.Background()
	if err := a.upsertAndPush(ctx, live); err != nil {
		t.Fatalf("upsertAndPush(live) error: %v", err)
	}
	if err := a.upsertAndPush(ctx, orphan); err != nil {
		t.Fatalf("upsertAndPush(orphan) error: %v", err)
	}

	reg := registry.New()
	reg.Add(live)
	// orphan is never registered: it simulates a crashed owner whose
	// heartbeat stops advancing.

	gcInterval := 500 * time.Millisecond
	now := time.Now().Add(3 * gcInterval)
	staleAt := now.Add(-2 * gcInterval)

	result, err := a.GC(ctx, adapter.GCInput{
		Registry:     reg,
		GCIntervalMs: 500,
		At:           now,
		StaleAt:      staleAt,
	})
	if err != nil {
		t.Fatalf("GC() error: %v", err)
	}
	if result.CollectedCount != 1 {
		t.Fatalf("CollectedCount = %d, want 1", result.CollectedCount)
	}
	if result.RefreshedCount != 1 {
		t.Fatalf("RefreshedCount = %d, want 1", result.RefreshedCount)
	}

	if err := a.Release(ctx, orphan); !errors.Is(err, ErrNotInQueue) {
		t.Fatalf("Release(orphan) error = %v, want ErrNotInQueue (collected by GC)", err)
	}
	if err := a.Release(ctx, live); err != nil {
		t.Fatalf("Release(live) error: %v, want nil (still tracked)", err)
	}
}

func TestEnqueueDuplicateKeyExhaustsRetries(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a := openTestAdapter(t, dbPath)
	if err := a.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	l := lockstate.NewReader("L", lockstate.Options{}, nil)
	ctx := context.Background()
	if err := a.upsertAndPush(ctx, l); err != nil {
		t.Fatalf("first upsertAndPush() error: %v", err)
	}

	// Re-enqueuing the same lock ID collides with the queue table's unique id
	// index on every attempt, so the retry loop must surface the final
	// duplicate-key error rather than hang or silently succeed.
	err := a.upsertAndPush(ctx, l)
	if err == nil {
		t.Fatal("second upsertAndPush() with a colliding id = nil error, want duplicate-key failure")
	}
}

// TestCollectionNameIsolatesTables checks that two Adapters opened against
// the same file with different collection names get independent tables: a
// lock tracked under one collection must not be visible to the other.
func TestCollectionNameIsolatesTables(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	a, err := Open(dbPath, WithCollectionName("tenant_a"))
	if err != nil {
		t.Fatalf("Open(tenant_a) error: %v", err)
	}
	defer a.Close()
	if err := a.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup(tenant_a) error: %v", err)
	}

	b, err := Open(dbPath, WithCollectionName("tenant_b"))
	if err != nil {
		t.Fatalf("Open(tenant_b) error: %v", err)
	}
	defer b.Close()
	if err := b.Setup(context.Background(), adapter.SetupOptions{}); err != nil {
		t.Fatalf("Setup(tenant_b) error: %v", err)
	}

	ctx := context.Background()
	w := lockstate.NewWriter("L", lockstate.Options{}, nil)
	waitAcquired(t, acquireAsync(t, a, w))

	done := acquireAsync(t, b, lockstate.NewReader("L", lockstate.Options{PullIntervalMs: testPullIntervalMs}, nil))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("tenant_b read acquire error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("tenant_b read acquire did not complete; tables are not isolated from tenant_a's writer")
	}

	if err := a.Release(ctx, w); err != nil {
		t.Fatalf("Release(w) error: %v", err)
	}
}

func TestInvalidCollectionNameRejected(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "locks.db")
	if _, err := Open(dbPath, WithCollectionName("bad name; DROP TABLE")); err == nil {
		t.Fatal("Open() with an invalid collection name = nil error, want rejection")
	}
}
