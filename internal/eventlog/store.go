package eventlog

import (
	"sync"
	"time"
)

// Capacity is the number of entries retained by a Store.
const Capacity = 50

// Store is a fixed-capacity, newest-first ring buffer of entries.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The append hook runs after the lock is released, on the appending goroutine.
type Store struct {
	mu     sync.RWMutex
	ring   [Capacity]Entry
	head   int // index the next entry is written to
	size   int
	nextID uint64

	now func() time.Time

	onAppend func(Entry)
	hookMu   sync.RWMutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		nextID: 1,
		now:    time.Now,
	}
}

// Append records a message and returns the stored entry.
// Unknown categories are stored as info.
func (s *Store) Append(message string, category Category) Entry {
	if !category.Valid() {
		category = CategoryInfo
	}

	s.mu.Lock()
	e := Entry{
		ID:        s.nextID,
		Timestamp: s.now(),
		Message:   message,
		Category:  category,
	}
	s.nextID++
	s.ring[s.head] = e
	s.head = (s.head + 1) % Capacity
	if s.size < Capacity {
		s.size++
	}
	s.mu.Unlock()

	s.hookMu.RLock()
	hook := s.onAppend
	s.hookMu.RUnlock()
	if hook != nil {
		hook(e)
	}

	return e
}

// Snapshot returns a point-in-time copy of the retained entries, newest first.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, s.size)
	for i := 1; i <= s.size; i++ {
		idx := (s.head - i + Capacity) % Capacity
		out = append(out, s.ring[idx])
	}
	return out
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// SetOnAppend sets a callback invoked with every new entry.
// The callback must not block; it runs on the goroutine that appended.
func (s *Store) SetOnAppend(callback func(Entry)) {
	s.hookMu.Lock()
	s.onAppend = callback
	s.hookMu.Unlock()
}
