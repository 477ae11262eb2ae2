package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// clock lets tests move the store's notion of now.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func withClock(s *Store) *clock {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	s.now = c.now
	return c
}

func TestLookupReportsExpiry(t *testing.T) {
	store := openTestStore(t)
	clk := withClock(store)

	if _, found, err := store.Lookup("pools:44787"); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if err := store.Put("pools:44787", []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry, found, err := store.Lookup("pools:44787")
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if entry.Expired(clk.now()) {
		t.Fatal("entry should be fresh")
	}
	clk.advance(2 * time.Minute)
	if !entry.Expired(clk.now()) {
		t.Fatal("entry should have expired")
	}
	if got := entry.Age(clk.now()); got != 2*time.Minute {
		t.Fatalf("unexpected age %s", got)
	}
}

func TestReadThroughFreshMissAndStale(t *testing.T) {
	store := openTestStore(t)
	clk := withClock(store)
	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"CELO", "USDC"}, nil
	}

	res, err := ReadThrough(context.Background(), store, "tokens", time.Minute, time.Hour, fetch)
	if err != nil || res.State != StateMiss || calls != 1 {
		t.Fatalf("expected miss with one fetch, got %+v calls=%d err=%v", res, calls, err)
	}
	res, err = ReadThrough(context.Background(), store, "tokens", time.Minute, time.Hour, fetch)
	if err != nil || res.State != StateFresh || calls != 1 {
		t.Fatalf("expected cached hit, got %+v calls=%d err=%v", res, calls, err)
	}
	if len(res.Value) != 2 || res.Value[1] != "USDC" {
		t.Fatalf("unexpected cached value %v", res.Value)
	}

	clk.advance(10 * time.Minute)
	failing := func(context.Context) ([]string, error) { return nil, errors.New("rpc down") }
	res, err = ReadThrough(context.Background(), store, "tokens", time.Minute, time.Hour, failing)
	if err != nil || res.State != StateStale || res.Age != 10*time.Minute {
		t.Fatalf("expected stale fallback, got %+v err=%v", res, err)
	}

	clk.advance(2 * time.Hour)
	if _, err := ReadThrough(context.Background(), store, "tokens", time.Minute, time.Hour, failing); err == nil {
		t.Fatal("expected error once the snapshot is too old")
	}
}

func TestReadThroughWithoutStore(t *testing.T) {
	res, err := ReadThrough(context.Background(), nil, "k", time.Minute, 0, func(context.Context) (int, error) { return 7, nil })
	if err != nil || res.Value != 7 || res.State != StateMiss {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestPruneDropsLongExpiredSnapshots(t *testing.T) {
	store := openTestStore(t)
	clk := withClock(store)
	if err := store.Put("old", []byte(`1`), time.Second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put("new", []byte(`2`), time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	clk.advance(time.Minute)
	removed, err := store.Prune(10 * time.Second)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned snapshot, got %d", removed)
	}
	if _, found, _ := store.Lookup("new"); !found {
		t.Fatal("live snapshot was pruned")
	}
}

func TestConcurrentWritersShareLock(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 8
	const iterations = 20
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()
			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("balance:%d:%d", workerID, i)
				if err := store.Put(key, []byte(`"1.5"`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d put %d: %w", workerID, i, err)
					return
				}
				if _, found, err := store.Lookup(key); err != nil || !found {
					errCh <- fmt.Errorf("worker %d lookup %d: found=%v err=%v", workerID, i, found, err)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}
