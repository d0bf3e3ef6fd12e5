package classify

import (
	"sync"

	"github.com/lattice-osint/engine/entity"
)

// TagAllocator mints query sequence tags for UNVERIFIED connections.
//
// For a fixed base value (the literal input value that seeded the
// expansion step) successive allocations receive strictly increasing,
// gap-free suffixes starting at 1. Suffixes are never reused, so the tag
// doubles as a per-base dispatch counter. Safe for concurrent use.
type TagAllocator struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewTagAllocator creates an empty TagAllocator.
func NewTagAllocator() *TagAllocator {
	return &TagAllocator{counts: make(map[string]int)}
}

// Next allocates the next sequence tag for base. The suffix is the number
// of tags previously allocated for that base, plus one. Call only when an
// UNVERIFIED edge is actually being created, so the sequence stays
// gap-free.
func (a *TagAllocator) Next(base string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[base]++
	return entity.FormatSequenceTag(base, a.counts[base])
}

// Count returns how many tags have been allocated for base.
func (a *TagAllocator) Count(base string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[base]
}

// Restore primes the allocator from persisted state, so a resumed
// investigation continues the sequence instead of reusing suffixes.
// The larger of the current and supplied counts wins.
func (a *TagAllocator) Restore(base string, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if count > a.counts[base] {
		a.counts[base] = count
	}
}
