package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const lockWait = 5 * time.Second

// Store is a TTL key/value cache on sqlite. Writers serialize on a file lock
// so several bot processes can share one cache file.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

// Usable reports whether the entry may be served, fresh or within the stale budget.
func (r Result) Usable() bool {
	return r.Hit && !r.TooStale
}

type Option func(*Store)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func Open(path, lockPath string, opts ...Option) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"CREATE TABLE IF NOT EXISTS lookup_cache (key TEXT PRIMARY KEY, value BLOB NOT NULL, stored_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	_ = store.Prune(context.Background())
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune removes entries past their TTL.
func (s *Store) Prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM lookup_cache WHERE stored_at + ttl_seconds < ?", s.now().UTC().Unix()); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string, maxStale time.Duration) (Result, error) {
	var (
		value      []byte
		storedUnix int64
		ttlSeconds int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT value, stored_at, ttl_seconds FROM lookup_cache WHERE key = ?", key).Scan(&value, &storedUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := s.now().UTC().Sub(time.Unix(storedUnix, 0).UTC())
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	locked, err := s.lock.TryLockContext(ctx, lockWait)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lookup_cache (key, value, stored_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			stored_at=excluded.stored_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, value, s.now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// GetJSON decodes a usable entry into out. It returns the raw Result so
// callers can still report age and staleness.
func (s *Store) GetJSON(ctx context.Context, key string, maxStale time.Duration, out any) (Result, error) {
	res, err := s.Get(ctx, key, maxStale)
	if err != nil || !res.Usable() {
		return res, err
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return Result{}, fmt.Errorf("decode cached value: %w", err)
	}
	return res, nil
}

func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return s.Set(ctx, key, buf, ttl)
}
