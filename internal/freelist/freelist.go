// Package freelist recycles fixed-size records without allocator churn.
//
// Records live in an arena made of pages. The first page holds the initial
// size, every growth adds a page as large as everything allocated so far, so
// the arena doubles and no record ever moves. Records are addressed by their
// arena index, which stays valid until the pool is dropped.
//
// A Pool is not safe for concurrent use; callers serialize Acquire and
// Release. Get on an index that was handed out before may run concurrently
// with Acquire.
package freelist

import (
	"errors"
	"math/bits"
)

// maxPages caps growth; 32 doublings of even a single slot cover the
// uint32 index space.
const maxPages = 33

var (
	// ErrCapacityExceeded means more records were released than acquired.
	ErrCapacityExceeded = errors.New("freelist: capacity exceeded")
	// ErrNotAcquired means the record is already on the free stack.
	ErrNotAcquired = errors.New("freelist: record not acquired")
	// ErrExhausted means the arena cannot grow anymore.
	ErrExhausted = errors.New("freelist: arena exhausted")
)

type Pool[T any] struct {
	pages    [maxPages][]T
	npages   int
	first    uint32
	size     uint32
	free     []uint32
	acquired uint32
	// out has one bit per record, set while the record is acquired.
	out []uint64
}

// New returns a pool with size pre-allocated records.
func New[T any](size uint32) *Pool[T] {
	if size == 0 {
		size = 1
	}
	p := &Pool[T]{
		first: size,
		size:  size,
		free:  make([]uint32, 0, size),
		out:   make([]uint64, words(size)),
	}
	p.pages[0] = make([]T, size)
	p.npages = 1
	p.pushRange(0, size)
	return p
}

func words(n uint32) int {
	return int((n + 63) / 64)
}

// pushRange pushes [lo, hi) so that lo ends up on top of the stack.
func (p *Pool[T]) pushRange(lo, hi uint32) {
	for i := hi; i > lo; i-- {
		p.free = append(p.free, i-1)
	}
}

func (p *Pool[T]) grow() error {
	if p.npages == maxPages || p.size >= 1<<31 {
		return ErrExhausted
	}
	p.pages[p.npages] = make([]T, p.size)
	p.npages++
	lo := p.size
	p.size *= 2
	p.out = append(p.out, make([]uint64, words(p.size)-len(p.out))...)
	p.pushRange(lo, p.size)
	return nil
}

// Acquire pops a zeroed record off the free stack, growing the arena when
// the stack is empty.
func (p *Pool[T]) Acquire() (uint32, *T, error) {
	if len(p.free) == 0 {
		if err := p.grow(); err != nil {
			return 0, nil, err
		}
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.acquired++
	p.out[idx/64] |= 1 << (idx % 64)
	r := p.Get(idx)
	var zero T
	*r = zero
	return idx, r, nil
}

// Release pushes the record back onto the free stack. Releasing a record
// twice fails with ErrNotAcquired.
func (p *Pool[T]) Release(idx uint32) error {
	if uint32(len(p.free)) >= p.size || idx >= p.size {
		return ErrCapacityExceeded
	}
	bit := uint64(1) << (idx % 64)
	if p.out[idx/64]&bit == 0 {
		return ErrNotAcquired
	}
	p.out[idx/64] &^= bit
	p.free = append(p.free, idx)
	p.acquired--
	return nil
}

// Reset hands every record back at once. The arena keeps its size and the
// next Acquire returns index 0.
func (p *Pool[T]) Reset() {
	p.free = p.free[:0]
	p.pushRange(0, p.size)
	clear(p.out)
	p.acquired = 0
}

// Get dereferences an arena index.
func (p *Pool[T]) Get(idx uint32) *T {
	if idx < p.first {
		return &p.pages[0][idx]
	}
	g := bits.Len32(idx / p.first)
	return &p.pages[g][idx-p.first<<(g-1)]
}

// Cap returns the number of records in the arena.
func (p *Pool[T]) Cap() uint32 {
	return p.size
}

// InUse returns the number of records currently acquired.
func (p *Pool[T]) InUse() uint32 {
	return p.acquired
}

// Available returns the number of records on the free stack.
func (p *Pool[T]) Available() int {
	return len(p.free)
}
