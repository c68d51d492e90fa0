package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggonzalez94/volume-bot/internal/cache"
	"github.com/ggonzalez94/volume-bot/internal/httpx"
	"github.com/ggonzalez94/volume-bot/internal/id"
)

const bscToken = "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82"

const cakePairs = `{"pairs":[{
	"chainId":"bsc",
	"url":"https://dexscreener.com/bsc/0xpair",
	"priceUsd":"2.41",
	"volume":{"h24":1234567.5},
	"baseToken":{"address":"0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82","name":"PancakeSwap Token","symbol":"Cake"}
},{
	"chainId":"ethereum","priceUsd":"9.99","volume":{"h24":1}
}]}`

func TestIdentifyTokenUsesFirstPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tokens/"+bscToken {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(cakePairs))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL))
	got, err := c.IdentifyToken(context.Background(), bscToken)
	if err != nil {
		t.Fatalf("IdentifyToken failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected token info")
	}
	if got.Network != id.BSC || got.ChainID != "bsc" {
		t.Fatalf("unexpected network %q (%s)", got.Network, got.ChainID)
	}
	if got.Symbol != "Cake" || got.PriceUSD != "2.41" || got.Volume24h != "1234567.5" {
		t.Fatalf("unexpected market data %+v", got)
	}
	if !got.HasMarketData() {
		t.Fatal("expected market data")
	}
}

func TestIdentifyTokenWithoutPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs":null}`))
	}))
	defer srv.Close()

	got, err := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL)).IdentifyToken(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("IdentifyToken failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unlisted token, got %+v", got)
	}
}

func TestIdentifyTokenMissingVolumeHasNoMarketData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs":[{"chainId":"solana","priceUsd":"0.1","baseToken":{"symbol":"BONK"}}]}`))
	}))
	defer srv.Close()

	got, err := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL)).IdentifyToken(context.Background(), "x")
	if err != nil {
		t.Fatalf("IdentifyToken failed: %v", err)
	}
	if got.Network != id.Solana || got.HasMarketData() {
		t.Fatalf("unexpected info %+v", got)
	}
}

func TestLookupCachesAndFallsBackToStale(t *testing.T) {
	var calls int32
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(cakePairs))
	}))
	defer srv.Close()

	now := time.Unix(1_700_000_000, 0)
	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"), cache.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	c := New(httpx.New(2*time.Second, 0), WithBaseURL(srv.URL), WithCache(store, time.Minute, 5*time.Minute))
	ctx := context.Background()

	first, err := c.Lookup(ctx, bscToken)
	if err != nil || first.Cache.Status != "miss" {
		t.Fatalf("expected miss, got %+v err=%v", first.Cache, err)
	}
	second, err := c.Lookup(ctx, bscToken)
	if err != nil || second.Cache.Status != "hit" {
		t.Fatalf("expected hit, got %+v err=%v", second.Cache, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}

	now = now.Add(3 * time.Minute)
	failing.Store(true)
	stale, err := c.Lookup(ctx, bscToken)
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if stale.Cache.Status != "stale" || !stale.Cache.Stale || stale.Token.Symbol != "Cake" {
		t.Fatalf("unexpected stale lookup %+v", stale)
	}

	now = now.Add(time.Hour)
	if _, err := c.Lookup(ctx, bscToken); err == nil {
		t.Fatal("expected error once the entry is too stale")
	}
}
