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

// Package atomicx provides small typed wrappers around sync/atomic for the
// monotonic counters and shutdown flags shared across engines.
package atomicx

import "sync/atomic"

// Bool is a lock-free boolean flag safe for concurrent readers and writers.
// It backs the process-wide shutdown signal ("done" in spec terms): one or
// many goroutines may set it, and every loop in every engine polls it.
type Bool struct {
	v atomic.Bool
}

func (b *Bool) Set(val bool) { b.v.Store(val) }
func (b *Bool) Get() bool    { return b.v.Load() }

// CompareAndSwap reports whether the swap from old to new succeeded.
func (b *Bool) CompareAndSwap(old, new bool) bool {
	return b.v.CompareAndSwap(old, new)
}

// Counter is a monotonically increasing counter. Negative deltas are not
// supported by design: total_served and similar statistics only ever climb.
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Add(delta int64) int64 { return c.v.Add(delta) }
func (c *Counter) Inc() int64            { return c.v.Add(1) }
func (c *Counter) Load() int64           { return c.v.Load() }

// HighWatermark tracks the maximum value ever observed via Bump. It never
// decreases, matching the max_concurrent contract in spec.md §3.
type HighWatermark struct {
	v atomic.Int64
}

// Bump raises the watermark to cur if cur is greater than the current value.
// Safe for concurrent callers; uses a CAS retry loop rather than a
// load-then-store so two racing bumps never lose an update.
func (h *HighWatermark) Bump(cur int64) {
	for {
		old := h.v.Load()
		if cur <= old {
			return
		}
		if h.v.CompareAndSwap(old, cur) {
			return
		}
	}
}

func (h *HighWatermark) Load() int64 { return h.v.Load() }

// Gauge is a bidirectional counter: unlike Counter, it supports decrements,
// which makes it the right primitive for values like active-connection
// counts that rise and fall over the life of the process.
type Gauge struct {
	v atomic.Int64
}

func (g *Gauge) Add(delta int64) int64 { return g.v.Add(delta) }
func (g *Gauge) Inc() int64            { return g.v.Add(1) }
func (g *Gauge) Dec() int64            { return g.v.Add(-1) }
func (g *Gauge) Load() int64           { return g.v.Load() }
