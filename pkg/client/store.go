package client

import (
	"sync"
	"time"
)

// storeEntry is one cached value with an optional absolute expiry.
type storeEntry struct {
	value    []byte
	expires  time.Time
	hasTTL   bool
}

func (e storeEntry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expires)
}

// Store is a client-scoped key/value cache with optional per-entry TTL.
// Expiry is checked lazily on access rather than by a background sweep,
// matching the teacher's TokenManager (pkg/manager/token.go), which
// relies on callers invoking CleanupExpiredTokens rather than a timer.
type Store struct {
	mu      sync.RWMutex
	entries map[string]storeEntry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]storeEntry)}
}

// Insert sets key to value with an optional ttl (nil means no expiry)
// and returns the previous value, if any and not itself expired.
func (s *Store) Insert(key string, value []byte, ttl *time.Duration) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	prev, existed := s.entries[key]

	e := storeEntry{value: value}
	if ttl != nil {
		e.hasTTL = true
		e.expires = now.Add(*ttl)
	}
	s.entries[key] = e

	if existed && !prev.expired(now) {
		return prev.value
	}
	return nil
}

// Get returns the value for key, or ok=false if absent or expired.
// An expired entry found during Get is removed immediately.
func (s *Store) Get(key string) (value []byte, ok bool) {
	s.mu.RLock()
	e, exists := s.entries[key]
	s.mu.RUnlock()
	if !exists {
		return nil, false
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Delete removes key and returns its value, if present and unexpired.
func (s *Store) Delete(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return nil
	}
	delete(s.entries, key)
	if e.expired(time.Now()) {
		return nil
	}
	return e.value
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]storeEntry)
}

// Sweep removes every expired entry and reports how many were removed.
// Callers may invoke this periodically; Get and Insert already evict
// lazily so Sweep is purely a memory-reclamation convenience.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Snapshot returns a copy of every unexpired entry's value, without its
// expiry.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	out := make(map[string][]byte, len(s.entries))
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		out[k] = append([]byte(nil), e.value...)
	}
	return out
}
