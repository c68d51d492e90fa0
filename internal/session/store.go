package session

import (
	"sync"
	"time"
)

// Store keeps one session per user. Updates to the same user run one at a
// time; different users never contend beyond the map lookup.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]*entry
	now     func() time.Time
}

type entry struct {
	mu      sync.Mutex
	session *Session
}

func NewStore() *Store {
	return &Store{entries: map[int64]*entry{}, now: time.Now}
}

// WithClock swaps the clock used for UpdatedAt and eviction.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) entry(userID int64) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &entry{session: New(userID)}
	e.session.UpdatedAt = s.now()
	s.entries[userID] = e
	return e
}

// Update runs fn against the user's session, creating it on first use.
// fn works on a copy that is committed only when it returns nil, so a
// rejected input never leaves a half-applied change behind.
func (s *Store) Update(userID int64, fn func(*Session) error) error {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.session.Clone()
	if err := fn(working); err != nil {
		return err
	}
	working.UpdatedAt = s.now()
	e.session = working
	return nil
}

// Get returns a copy of the user's session, creating it on first use.
func (s *Store) Get(userID int64) *Session {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EvictIdle drops sessions untouched for longer than ttl and returns how
// many were removed. Sessions with an update in flight or a cycle running
// are kept.
func (s *Store) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.session.UpdatedAt.Before(cutoff) && !e.session.Executing() {
			delete(s.entries, userID)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}
