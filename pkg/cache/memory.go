package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryStore is a capacity-bounded in-memory store with
// least-recently-used eviction. Reads refresh recency; expired entries
// are dropped lazily when a Get finds them.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front = most recently used
	entries  map[string]*list.Element // value: *Entry
}

// DefaultCapacity bounds a memory store when no capacity is given.
const DefaultCapacity = 100

// NewMemoryStore creates a store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the unexpired entry for key and marks it most recently
// used.
func (s *MemoryStore) Get(key string, now time.Time) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := element.Value.(*Entry)
	if entry.Expired(now) {
		s.order.Remove(element)
		delete(s.entries, key)
		return nil, false
	}
	s.order.MoveToFront(element)
	return entry, true
}

// Set stores the entry, evicting the least-recently-used entry when
// the capacity bound is exceeded.
func (s *MemoryStore) Set(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if element, ok := s.entries[entry.Key]; ok {
		element.Value = entry
		s.order.MoveToFront(element)
		return nil
	}

	s.entries[entry.Key] = s.order.PushFront(entry)

	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*Entry).Key)
	}
	return nil
}

// Len returns the current entry count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Clear removes all entries.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	s.entries = make(map[string]*list.Element)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Capacity returns the store's entry bound.
func (s *MemoryStore) Capacity() int { return s.capacity }
