// Package vector provides the growable containers used across the flow
// runtime: a dynamic array of fixed-size elements and a pointer array with
// sorted insertion.
//
// Both containers keep their length within the 16-bit index space so that
// port and connection indices stay representable on the wire and in the
// inspector. Capacity follows a power-of-two policy: it grows to the next
// power of two of the length and shrinks when the length crosses a
// power-of-two boundary downward.
package vector

import (
	"fmt"
	"math"

	"github.com/loomengine/loom/pkg/flowerr"
)

// MaxLen is the maximum number of elements a vector can hold.
const MaxLen = math.MaxUint16

// Vector is a dynamically growing ordered sequence.
//
// The zero value is an empty vector ready for use.
type Vector[T any] struct {
	data []T
}

func alignCap(n int) int {
	if n == 0 {
		return 0
	}
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}

func (v *Vector[T]) realloc(n int) {
	c := alignCap(n)
	if c == cap(v.data) {
		v.data = v.data[:n]
		return
	}
	grown := make([]T, n, c)
	copy(grown, v.data)
	v.data = grown
}

// Len returns the number of elements.
func (v *Vector[T]) Len() int { return len(v.data) }

// Append adds elem at the end, growing the storage if needed.
func (v *Vector[T]) Append(elem T) error {
	if len(v.data)+1 > MaxLen {
		return fmt.Errorf("vector length %d: %w", len(v.data), flowerr.ErrOverflow)
	}
	n := len(v.data)
	v.realloc(n + 1)
	v.data[n] = elem
	return nil
}

// AppendN adds all elems at the end in order.
func (v *Vector[T]) AppendN(elems ...T) error {
	if len(v.data)+len(elems) > MaxLen {
		return fmt.Errorf("vector length %d+%d: %w", len(v.data), len(elems), flowerr.ErrOverflow)
	}
	n := len(v.data)
	v.realloc(n + len(elems))
	copy(v.data[n:], elems)
	return nil
}

// Get returns the element at index i.
func (v *Vector[T]) Get(i int) (T, error) {
	if i < 0 || i >= len(v.data) {
		var zero T
		return zero, fmt.Errorf("vector index %d of %d: %w", i, len(v.data), flowerr.ErrNotFound)
	}
	return v.data[i], nil
}

// Set stores elem at index i.
func (v *Vector[T]) Set(i int, elem T) error {
	if i < 0 || i >= len(v.data) {
		return fmt.Errorf("vector index %d of %d: %w", i, len(v.data), flowerr.ErrNotFound)
	}
	v.data[i] = elem
	return nil
}

// Del removes the element at index i, shifting the tail left. Cost is
// proportional to len−i.
func (v *Vector[T]) Del(i int) error {
	if i < 0 || i >= len(v.data) {
		return fmt.Errorf("vector index %d of %d: %w", i, len(v.data), flowerr.ErrNotFound)
	}
	copy(v.data[i:], v.data[i+1:])
	v.realloc(len(v.data) - 1)
	return nil
}

// Clear removes all elements and releases the backing storage.
func (v *Vector[T]) Clear() { v.data = nil }

// TakeData transfers ownership of the backing storage out of the vector,
// leaving it empty.
func (v *Vector[T]) TakeData() []T {
	data := v.data
	v.data = nil
	return data
}

// Slice exposes the live backing storage. The slice is invalidated by any
// mutating call.
func (v *Vector[T]) Slice() []T { return v.data }

// Cap reports the current capacity. Exposed for tests of the grow/shrink
// policy.
func (v *Vector[T]) Cap() int { return cap(v.data) }

// PtrVector is a Vector of pointers with sorted insertion and removal by
// identity.
type PtrVector[T any] struct {
	vec Vector[*T]
}

// Len returns the number of elements.
func (p *PtrVector[T]) Len() int { return p.vec.Len() }

// Append adds ptr at the end.
func (p *PtrVector[T]) Append(ptr *T) error { return p.vec.Append(ptr) }

// Get returns the pointer at index i.
func (p *PtrVector[T]) Get(i int) (*T, error) { return p.vec.Get(i) }

// Del removes the pointer at index i.
func (p *PtrVector[T]) Del(i int) error { return p.vec.Del(i) }

// Clear removes all elements.
func (p *PtrVector[T]) Clear() { p.vec.Clear() }

// Slice exposes the live backing storage.
func (p *PtrVector[T]) Slice() []*T { return p.vec.Slice() }

// InsertSorted inserts ptr keeping the vector ordered under cmp. Existing
// order is assumed; insertion point is found by binary search and the tail
// is shifted right.
func (p *PtrVector[T]) InsertSorted(ptr *T, cmp func(a, b *T) int) (int, error) {
	if len(p.vec.data)+1 > MaxLen {
		return -1, fmt.Errorf("ptr vector length %d: %w", len(p.vec.data), flowerr.ErrOverflow)
	}
	i := p.searchInsertion(ptr, cmp)
	n := len(p.vec.data)
	p.vec.realloc(n + 1)
	copy(p.vec.data[i+1:], p.vec.data[i:n])
	p.vec.data[i] = ptr
	return i, nil
}

func (p *PtrVector[T]) searchInsertion(ptr *T, cmp func(a, b *T) int) int {
	lo, hi := 0, len(p.vec.data)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(p.vec.data[mid], ptr) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// UpdateSorted re-sorts the element at index i after its key changed,
// moving it to its new position. It returns the new index.
func (p *PtrVector[T]) UpdateSorted(i int, cmp func(a, b *T) int) (int, error) {
	ptr, err := p.vec.Get(i)
	if err != nil {
		return -1, err
	}
	data := p.vec.data
	if (i == 0 || cmp(data[i-1], ptr) <= 0) &&
		(i == len(data)-1 || cmp(ptr, data[i+1]) <= 0) {
		return i, nil
	}
	if err := p.vec.Del(i); err != nil {
		return -1, err
	}
	return p.InsertSorted(ptr, cmp)
}

// Remove deletes the first occurrence of ptr scanning from the end.
func (p *PtrVector[T]) Remove(ptr *T) error {
	for i := len(p.vec.data) - 1; i >= 0; i-- {
		if p.vec.data[i] == ptr {
			return p.vec.Del(i)
		}
	}
	return fmt.Errorf("pointer not present: %w", flowerr.ErrNotFound)
}
