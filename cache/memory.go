package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per entry TTL and a bounded
// number of entries. When full it evicts the oldest entry first. A single
// mutex guards all mutation.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      []string
	maxEntries int
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries.
// A maxEntries of zero or less means 1024.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		order:      make([]string, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Get returns the value stored under the key. Expired entries are removed
// lazily on access.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.remove(key)
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores the value under the key. A ttl of zero or less means the entry
// never expires. The oldest entry is evicted when the store is full.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	if existing, ok := s.entries[key]; ok {
		existing.value = stored
		existing.expiresAt = expiresAt
		return nil
	}

	for len(s.entries) >= s.maxEntries && len(s.order) > 0 {
		s.remove(s.order[0])
	}

	s.entries[key] = &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
	s.order = append(s.order, key)
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(key)
	return nil
}

// DeletePrefix removes all keys starting with the prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.remove(key)
		}
	}
	return nil
}

// Close drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*memoryEntry)
	s.order = s.order[:0]
	return nil
}

// Len returns the current number of entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// remove must be called with the mutex held.
func (s *MemoryStore) remove(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
