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

// Package ringqueue implements a fixed-capacity, lock-free single-producer/
// single-consumer ring buffer: Put spins while the buffer is full, and Get
// spins while it is empty. No engine uses it; the thread-pool engine hands
// accepted connections to its workers over per-worker channels instead.
//
// The original server defined this structure (ring_buffer_t) but never
// wired it up — client_backlog was declared and immediately commented out
// of thread_server.c.
package ringqueue

import (
	"runtime"
	"sync/atomic"
)

// Queue is a bounded SPSC ring buffer of T. Put must only ever be called
// from one goroutine, and Get from (at most) one other.
type Queue[T any] struct {
	items []T
	size  uint64

	head        atomic.Uint64
	tail        atomic.Uint64
	readerGuard atomic.Bool
}

// New returns a Queue with room for exactly size elements.
func New[T any](size int) *Queue[T] {
	if size <= 0 {
		panic("ringqueue: size must be positive")
	}
	return &Queue[T]{
		items: make([]T, size),
		size:  uint64(size),
	}
}

// Put adds item to the buffer, spinning (yielding between attempts) while
// the buffer is full, mirroring ring_buffer_put's CAS retry loop.
func (q *Queue[T]) Put(item T) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()

		if tail-head < q.size {
			// Fill the slot before publishing it through tail, so a
			// consumer that observes the new tail never reads a
			// half-written item.
			q.items[tail%q.size] = item
			if q.tail.CompareAndSwap(tail, tail+1) {
				q.readerGuard.Store(true)
				return
			}
		}
		runtime.Gosched()
	}
}

// Get removes and returns the oldest item in the buffer, spinning while
// the buffer is empty, mirroring ring_buffer_get's reader-guard protocol:
// the guard is cleared once the consumer observes an empty buffer and set
// again by the next Put, so Get only re-checks head/tail instead of
// touching memory that might still be mid-write.
func (q *Queue[T]) Get() T {
	for {
		head := q.head.Load()
		tail := q.tail.Load()

		if head == tail {
			q.readerGuard.Store(false)
			runtime.Gosched()
			continue
		}

		if q.readerGuard.Load() {
			item := q.items[head%q.size]
			q.head.Store(head + 1)
			return item
		}
		runtime.Gosched()
	}
}

// Len reports the number of items currently queued. It is advisory only;
// by the time the caller observes the result it may already be stale.
func (q *Queue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}
