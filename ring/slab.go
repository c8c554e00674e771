package ring

import "sync"

// Slab is a fixed-size free list of *T, the Go stand-in for the
// externally-supplied slab/mempool allocator referenced throughout
// spec.md (component A, §3's packet-buffer lifecycle). new is called
// by Get to materialize a fresh *T only when the free list is empty
// (the pool starts empty and grows lazily up to limit distinct live
// allocations, the same way a real pktmbuf pool is sized up front but
// handed out through Get/Put).
type Slab[T any] struct {
	mu    sync.Mutex
	free  []*T
	new   func() *T
	limit int
	alloc int
}

// NewSlab creates a slab pool bounded at limit outstanding allocations,
// using newFn to construct a zero-value *T when the free list is
// empty and the limit has not been reached.
func NewSlab[T any](limit int, newFn func() *T) *Slab[T] {
	return &Slab[T]{
		free:  make([]*T, 0, limit),
		new:   newFn,
		limit: limit,
	}
}

// Get removes and returns one buffer from the pool, allocating a new
// one if the free list is empty and the pool has not hit its limit.
// It returns nil if the pool is exhausted.
func (s *Slab[T]) Get() *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		v := s.free[n-1]
		s.free = s.free[:n-1]
		return v
	}
	if s.alloc >= s.limit {
		return nil
	}
	s.alloc++
	return s.new()
}

// Put returns a buffer to the free list. Callers must not use v after
// calling Put — ownership passes back to the pool (I5 in spec.md §3).
func (s *Slab[T]) Put(v *T) {
	if v == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = append(s.free, v)
}

// Outstanding returns the number of buffers currently allocated but
// not yet returned to the pool.
func (s *Slab[T]) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alloc - len(s.free)
}
