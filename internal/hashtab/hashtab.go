// Package hashtab implements a bucketed hash table keyed by integers.
//
// Every bucket holds a singly linked chain of entries. Deleting an entry only
// marks it free so it can be recycled by a later insertion into the same
// chain; the load factor is computed over live entries only. The table
// doubles its bucket count once the live load factor reaches 0.75.
//
// The table is not safe for concurrent use.
package hashtab

import (
	"errors"
	"fmt"
)

const (
	loadFactor = 0.75

	// MaxLogSize bounds the number of buckets to 1<<MaxLogSize.
	MaxLogSize = 30
)

// ErrDuplicateKey is returned by Add when a live entry already uses the key.
var ErrDuplicateKey = errors.New("hashtab: duplicate key")

type (
	// Entry is a slot of a bucket chain. Value may be mutated in place.
	Entry[V any] struct {
		Value V

		key  uint64
		free bool
		next *Entry[V]
	}

	Table[V any] struct {
		buckets   []*Entry[V]
		logSize   uint
		mask      uint64
		count     int
		freeCount int
	}
)

// Key returns the key the entry is stored under.
func (e *Entry[V]) Key() uint64 {
	return e.key
}

// New returns a table with 1<<logSize buckets.
func New[V any](logSize uint) *Table[V] {
	if logSize > MaxLogSize {
		logSize = MaxLogSize
	}
	size := 1 << logSize
	return &Table[V]{
		buckets: make([]*Entry[V], size),
		logSize: logSize,
		mask:    uint64(size - 1),
	}
}

func (t *Table[V]) hash(key uint64) uint64 {
	a := key
	a = (a ^ 61) ^ (a >> 16)
	a = a + (a << 3)
	a = a ^ (a >> 4)
	a = a * 0x27d4eb2d
	a = a ^ (a >> 15)
	return a & t.mask
}

// Add inserts key. It fails with ErrDuplicateKey if a live entry with the
// same key exists.
func (t *Table[V]) Add(key uint64, val V) error {
	h := t.hash(key)
	var recycled *Entry[V]
	for p := t.buckets[h]; p != nil; p = p.next {
		if p.free {
			if recycled == nil {
				recycled = p
			}
			continue
		}
		if p.key == key {
			return fmt.Errorf("%w: %d", ErrDuplicateKey, key)
		}
	}
	if recycled != nil {
		recycled.key = key
		recycled.Value = val
		recycled.free = false
		t.freeCount--
	} else {
		t.buckets[h] = &Entry[V]{
			Value: val,
			key:   key,
			next:  t.buckets[h],
		}
		t.count++
	}
	if float64(t.count-t.freeCount)/float64(len(t.buckets)) >= loadFactor {
		t.grow()
	}
	return nil
}

// grow doubles the bucket count. At MaxLogSize the table stops growing and
// chains simply get longer.
func (t *Table[V]) grow() {
	if t.logSize >= MaxLogSize {
		return
	}
	bigger := New[V](t.logSize + 1)
	for _, p := range t.buckets {
		for ; p != nil; p = p.next {
			if p.free {
				continue
			}
			h := bigger.hash(p.key)
			bigger.buckets[h] = &Entry[V]{
				Value: p.Value,
				key:   p.key,
				next:  bigger.buckets[h],
			}
			bigger.count++
		}
	}
	*t = *bigger
}

// Find returns the live entry stored under key, or nil.
func (t *Table[V]) Find(key uint64) *Entry[V] {
	for p := t.buckets[t.hash(key)]; p != nil; p = p.next {
		if p.key == key && !p.free {
			return p
		}
	}
	return nil
}

// Get returns the value stored under key.
func (t *Table[V]) Get(key uint64) (V, bool) {
	if e := t.Find(key); e != nil {
		return e.Value, true
	}
	var zero V
	return zero, false
}

// Free marks the entry as free. Freeing an entry twice is a no-op.
func (t *Table[V]) Free(e *Entry[V]) {
	if e == nil || e.free {
		return
	}
	var zero V
	e.Value = zero
	e.free = true
	t.freeCount++
}

// Delete frees the entry stored under key and reports whether it existed.
func (t *Table[V]) Delete(key uint64) bool {
	e := t.Find(key)
	if e == nil {
		return false
	}
	t.Free(e)
	return true
}

// Len returns the number of live entries.
func (t *Table[V]) Len() int {
	return t.count - t.freeCount
}

// Capacity returns the number of buckets.
func (t *Table[V]) Capacity() int {
	return len(t.buckets)
}

// Range calls fn for every live entry until fn returns false. fn may free
// entries, but must not insert into the table: a resize during iteration
// leaves the remaining walk undefined.
func (t *Table[V]) Range(fn func(e *Entry[V]) bool) {
	for _, p := range t.buckets {
		for p != nil {
			next := p.next
			if !p.free && !fn(p) {
				return
			}
			p = next
		}
	}
}
