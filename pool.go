// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// PoolStats is a snapshot of a [*Pool] bookkeeping.
type PoolStats struct {
	// Allocated is the number of elements ever obtained from the Go allocator.
	Allocated int

	// Free is the number of elements ready to be acquired without growing.
	Free int

	// InUse is the number of elements currently acquired.
	InUse int
}

// Pool is a typed free-list arena.
//
// Each element type gets its own pool, which is the typed equivalent of a
// size class: acquisition and release are always paired on the same type, so
// an element can never be returned to the wrong class.
//
// The pool grows on demand and never shrinks. Released elements are zeroed
// before they become acquirable again.
//
// A Pool is not safe for concurrent use. Each [*Graph] owns its pools and
// must be driven by a single goroutine at a time.
type Pool[T any] struct {
	allocated int
	free      []*T
	inUse     map[*T]struct{}
}

// NewPool returns a new [*Pool] with prealloc elements ready to be acquired.
func NewPool[T any](prealloc int) *Pool[T] {
	p := &Pool[T]{
		free:  make([]*T, 0, max(prealloc, 0)),
		inUse: make(map[*T]struct{}, max(prealloc, 0)),
	}
	p.grow(prealloc)
	return p
}

func (p *Pool[T]) grow(n int) {
	for range n {
		p.free = append(p.free, new(T))
		p.allocated++
	}
}

// Acquire returns an element that no other live acquisition holds.
//
// When the free list is empty the pool grows by one element. The only
// failure is a bookkeeping inconsistency (an element that is already
// registered as in use sitting on the free list), reported as
// [ErrPoolExhausted]. This is a fatal condition.
func (p *Pool[T]) Acquire() (*T, error) {
	if len(p.free) <= 0 {
		p.grow(1)
	}
	last := len(p.free) - 1
	elem := p.free[last]
	if _, found := p.inUse[elem]; found {
		return nil, ErrPoolExhausted
	}
	p.free[last] = nil
	p.free = p.free[:last]
	p.inUse[elem] = struct{}{}
	return elem, nil
}

// Release zeroes elem and makes it acquirable again.
//
// Releasing nil, or an element this pool did not hand out (or already took
// back), is a no-op returning false.
func (p *Pool[T]) Release(elem *T) bool {
	if elem == nil {
		return false
	}
	if _, found := p.inUse[elem]; !found {
		return false
	}
	delete(p.inUse, elem)
	var zero T
	*elem = zero
	p.free = append(p.free, elem)
	return true
}

// Stats returns the current [PoolStats].
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Allocated: p.allocated,
		Free:      len(p.free),
		InUse:     len(p.inUse),
	}
}
