package cache

import "github.com/suprax-sim/suprax/internal/coherence"

// lineSet is a capacity-bounded, pinnable cache of lines with plain LRU
// replacement, ported from cachecommon.h's GenericLRUCacheBlock: a map
// plus a most-recently-used-first index list, with a pinned set excluded
// from eviction entirely. Unlike the original this models a single set
// (no set-indexed sharding), matching internal/cache's flat per-core L1.
type lineSet struct {
	capacity int
	lines    map[uint64]*coherence.CacheLine
	lru      []uint64
	pinned   map[uint64]bool
}

func newLineSet(capacity int) *lineSet {
	if capacity <= 0 {
		capacity = 64
	}
	return &lineSet{
		capacity: capacity,
		lines:    make(map[uint64]*coherence.CacheLine),
		pinned:   make(map[uint64]bool),
	}
}

func (s *lineSet) get(line uint64) (*coherence.CacheLine, bool) {
	l, ok := s.lines[line]
	if ok {
		s.touch(line)
	}
	return l, ok
}

// put inserts or replaces a line without running eviction — used by the
// fill path once a victim has already been chosen and by tests that seed
// a client's state directly.
func (s *lineSet) put(line uint64, l *coherence.CacheLine) {
	if _, exists := s.lines[line]; !exists {
		s.lru = append([]uint64{line}, s.lru...)
	} else {
		s.touch(line)
	}
	s.lines[line] = l
}

func (s *lineSet) touch(line uint64) {
	if s.pinned[line] {
		return
	}
	s.removeFromLRU(line)
	s.lru = append([]uint64{line}, s.lru...)
}

func (s *lineSet) removeFromLRU(line uint64) {
	for i, l := range s.lru {
		if l == line {
			s.lru = append(s.lru[:i], s.lru[i+1:]...)
			return
		}
	}
}

func (s *lineSet) remove(line uint64) {
	delete(s.lines, line)
	delete(s.pinned, line)
	s.removeFromLRU(line)
}

// pin exempts a line from eviction while its MSHR transaction is live,
// matching GenericLRUCacheBlock's pin/unpin pair.
func (s *lineSet) pin(line uint64) {
	if _, ok := s.lines[line]; !ok {
		return
	}
	s.removeFromLRU(line)
	s.pinned[line] = true
}

func (s *lineSet) unpin(line uint64) {
	if !s.pinned[line] {
		return
	}
	delete(s.pinned, line)
	s.lru = append([]uint64{line}, s.lru...)
}

// victim picks the least-recently-used unpinned line, if the set is at
// capacity and not already holding line. Reports ok=false if there is
// room, or every line is currently pinned (the transient-MSHR case where
// a fill simply has nowhere to evict from yet).
func (s *lineSet) victim(line uint64) (uint64, bool) {
	if _, exists := s.lines[line]; exists {
		return 0, false
	}
	if len(s.lines) < s.capacity {
		return 0, false
	}
	for i := len(s.lru) - 1; i >= 0; i-- {
		candidate := s.lru[i]
		if !s.pinned[candidate] {
			return candidate, true
		}
	}
	return 0, false
}

func (s *lineSet) len() int { return len(s.lines) }
