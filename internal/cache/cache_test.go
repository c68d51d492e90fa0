package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCacheFreshThenStale(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := openTestStore(t, clock)
	ctx := context.Background()

	if err := store.Set(ctx, "k1", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get(ctx, "k1", 5*time.Minute)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	clock.Advance(2 * time.Minute)
	res, err = store.Get(ctx, "k1", 5*time.Minute)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.TooStale || !res.Usable() {
		t.Fatalf("expected stale within budget, got %+v", res)
	}

	clock.Advance(10 * time.Minute)
	res, err = store.Get(ctx, "k1", 5*time.Minute)
	if err != nil {
		t.Fatalf("Get too stale failed: %v", err)
	}
	if !res.TooStale || res.Usable() {
		t.Fatalf("expected too stale, got %+v", res)
	}
}

func TestCacheMiss(t *testing.T) {
	store := openTestStore(t, &fakeClock{now: time.Now()})
	res, err := store.Get(context.Background(), "missing", time.Minute)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Hit {
		t.Fatalf("expected miss, got %+v", res)
	}
}

func TestCacheJSONRoundTrip(t *testing.T) {
	store := openTestStore(t, &fakeClock{now: time.Now()})
	ctx := context.Background()
	type token struct {
		Symbol string `json:"symbol"`
	}
	if err := store.SetJSON(ctx, "tok", token{Symbol: "BONK"}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var got token
	res, err := store.GetJSON(ctx, "tok", 0, &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !res.Hit || got.Symbol != "BONK" {
		t.Fatalf("unexpected cached value %+v (%+v)", got, res)
	}
}

func TestCachePruneDropsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := openTestStore(t, clock)
	ctx := context.Background()
	if err := store.Set(ctx, "old", []byte(`1`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	clock.Advance(time.Hour)
	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	res, err := store.Get(ctx, "old", -1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.Hit {
		t.Fatalf("expected pruned entry to be gone, got %+v", res)
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
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
				key := fmt.Sprintf("w%d-%d", workerID, i)
				if err := store.Set(context.Background(), key, []byte(`{}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set: %w", workerID, err)
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
