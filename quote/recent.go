package quote

import (
	"strings"
	"sync"
)

// DefaultRecentCapacity is the size of the de-duplication window.
const DefaultRecentCapacity = 50

// RecentSet is a bounded, case-insensitive set of recently produced
// quotes with insertion-order eviction: when the capacity is exceeded the
// oldest entry is dropped. Safe for concurrent use; ordering under
// concurrent writers is best-effort, which only affects novelty, never
// correctness.
type RecentSet struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]struct{}
	order    []string
}

// NewRecentSet creates a RecentSet with the given capacity.
// Capacities below 1 fall back to DefaultRecentCapacity.
func NewRecentSet(capacity int) *RecentSet {
	if capacity < 1 {
		capacity = DefaultRecentCapacity
	}
	return &RecentSet{
		capacity: capacity,
		entries:  make(map[string]struct{}, capacity),
	}
}

// Contains reports whether the quote is in the recent window.
// Comparison is case-insensitive.
func (s *RecentSet) Contains(quote string) bool {
	key := strings.ToLower(quote)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Insert adds the quote to the window, evicting the oldest entry when
// the capacity is exceeded. Inserting an existing entry is a no-op.
func (s *RecentSet) Insert(quote string) {
	key := strings.ToLower(quote)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return
	}
	s.entries[key] = struct{}{}
	s.order = append(s.order, key)

	if len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
}

// Len returns the number of entries currently tracked.
func (s *RecentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
