/*
 * MIT License
 *
 * Copyright (c) 2026 The echobench Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package seq provides a generic growable sequence used as the dense,
// fd-indexed client table shared by the mux engines: a socket's file
// descriptor is its index into the table, so the table must grow to fit
// whatever fd the kernel happens to hand out next.
package seq

// defaultCapacity mirrors VECTOR_DEFAULT_CAPACITY from the original
// vector.c.
const defaultCapacity = 8

// Sequence is a growable, index-addressable slice of T. Unlike a plain
// append-only slice, Set grows the backing array to fit whatever index is
// given, zero-filling the gap, which is what lets callers use it as a
// table keyed directly by file descriptor.
type Sequence[T any] struct {
	items []T
}

// New returns a Sequence with the given initial capacity. A cap of 0 uses
// defaultCapacity.
func New[T any](cap int) *Sequence[T] {
	if cap <= 0 {
		cap = defaultCapacity
	}
	return &Sequence[T]{items: make([]T, 0, cap)}
}

// Len returns the number of addressable slots, i.e. one past the highest
// index ever Set or PushBack.
func (s *Sequence[T]) Len() int {
	return len(s.items)
}

// Get returns the element at i. It panics if i is out of range, like a
// plain slice index.
func (s *Sequence[T]) Get(i int) T {
	return s.items[i]
}

// Set stores v at index i, growing the sequence (zero-filling any gap) if
// i is not yet addressable.
func (s *Sequence[T]) Set(i int, v T) {
	s.growTo(i + 1)
	s.items[i] = v
}

// PushBack appends v to the end of the sequence and returns its index.
func (s *Sequence[T]) PushBack(v T) int {
	s.items = append(s.items, v)
	return len(s.items) - 1
}

// RemoveAt clears the slot at i back to its zero value. The slot remains
// addressable (the sequence never shrinks), mirroring how the mux engines
// reuse a freed fd's slot for the next connection that happens to reuse
// that fd number rather than compacting the table.
func (s *Sequence[T]) RemoveAt(i int) {
	var zero T
	s.items[i] = zero
}

// growTo doubles the backing capacity until it can address n slots,
// matching vector_resize's doubling growth policy.
func (s *Sequence[T]) growTo(n int) {
	if n <= len(s.items) {
		return
	}
	if n <= cap(s.items) {
		s.items = s.items[:n]
		return
	}
	newCap := cap(s.items)
	if newCap == 0 {
		newCap = defaultCapacity
	}
	for newCap < n {
		newCap *= 2
	}
	grown := make([]T, n, newCap)
	copy(grown, s.items)
	s.items = grown
}
