// package cache provides the response cache that shields the remote API from redundant calls.
//
// Entries map a normalized request key to an opaque payload plus fetch
// metadata. A read never returns an entry older than its TTL; force-refresh is
// explicit and replaces the entry rather than merely bypassing it.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry is one cached response payload with its fetch metadata.
type Entry struct {
	Value     []byte
	FetchedAt time.Time
}

// Store is a TTL key-value cache safe for concurrent use.
//
// The map is guarded by a read-write mutex for lookups; fills of distinct keys
// proceed independently via per-key locks so one slow fetch never serializes
// the whole cache.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	now func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Entry),
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// Get returns the cached payload for key if it is younger than ttl.
//
// A miss or an expired entry is never an error, only a cue to call through to
// the remote client.
func (s *Store) Get(key string, ttl time.Duration) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.FetchedAt) >= ttl {
		return nil, false
	}
	return entry.Value, true
}

// Put stores value under key, stamping it with the current time.
func (s *Store) Put(key string, value []byte) {
	s.mu.Lock()
	s.entries[key] = Entry{Value: value, FetchedAt: s.now()}
	s.mu.Unlock()
}

// FetchedAt reports the fetch timestamp of an entry, for freshness assertions.
func (s *Store) FetchedAt(key string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry.FetchedAt, ok
}

// Invalidate removes one key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// InvalidatePrefix removes every key sharing the given prefix.
func (s *Store) InvalidatePrefix(prefix string) {
	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// Clear discards every entry. Not gated by the confirm protocol: cache
// invalidation is not data loss.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
}

// Len reports the number of entries currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// keyLock returns the fill lock for one key, creating it on first use.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// Fill returns the fresh cached payload for key, or runs fetch and stores its
// result. When force is true the fetch always runs and the entry is replaced.
//
// Concurrent fills of the same key are serialized so the remote is asked once.
func (s *Store) Fill(key string, ttl time.Duration, force bool, fetch func() ([]byte, error)) ([]byte, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if !force {
		if value, ok := s.Get(key, ttl); ok {
			return value, nil
		}
	}

	value, err := fetch()
	if err != nil {
		return nil, err
	}
	s.Put(key, value)
	return value, nil
}
