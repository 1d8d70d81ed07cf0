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

// Package engine defines the interface every concurrency engine
// (threadpool, levelmux, edgemux) implements, plus the Stats type they all
// report through. This is the Go analogue of the original server_t
// function table: start/add_client/cleanup, plus the two summary counters
// every implementation carried.
package engine

import (
	"net"
	"net/netip"

	"github.com/cedarforge/echobench/internal/atomicx"
)

// Client is one accepted connection handed to an engine.
type Client struct {
	Conn net.Conn
	Addr netip.AddrPort
}

// Engine is implemented by each concurrency strategy. Start is called once
// the acceptor is bound and listening; HandlesAccept tells the driver
// whether Start itself owns the accept loop (the two epoll engines poll
// the listening fd themselves) or expects the driver to push connections
// in via AddClient (the thread-pool engine, and the generic fallback
// loop).
type Engine interface {
	// Start prepares the engine to receive clients (spinning up workers,
	// creating an epoll instance, etc). If HandlesAccept is true, Start
	// does not return until the engine is told to shut down.
	Start() error

	// HandlesAccept reports whether this engine drives its own accept
	// loop against the acceptor, as opposed to expecting the driver to
	// call AddClient for each new connection.
	HandlesAccept() bool

	// AddClient hands a freshly accepted connection to the engine. It
	// must return quickly, per the original contract, so the accept
	// loop can resume immediately.
	AddClient(c Client) error

	// Cleanup releases the engine's resources (worker pool, epoll fd,
	// etc). It may be a no-op if the engine has nothing to release.
	Cleanup()

	// Stats returns the engine's live counters.
	Stats() *Stats
}

// Stats holds the two summary counters every engine reports, matching
// server_t's total_served and max_concurrent fields.
type Stats struct {
	// TotalServed counts connections that have fully run their course
	// (reached a zero-length terminator or errored out).
	TotalServed atomicx.Counter

	// MaxConcurrent is the high-watermark of simultaneously open
	// connections this engine has ever observed.
	MaxConcurrent atomicx.HighWatermark

	// active is the current number of open connections; it backs the
	// high-watermark bump and the active-connections gauge exported to
	// Prometheus.
	active atomicx.Gauge
}

// ConnOpened records that a new connection has started and returns the
// concurrency level immediately after it was counted.
func (s *Stats) ConnOpened() int64 {
	cur := s.active.Inc()
	s.MaxConcurrent.Bump(cur)
	return cur
}

// ConnClosed records that a connection has finished (successfully or
// not) and increments TotalServed.
func (s *Stats) ConnClosed() {
	s.active.Dec()
	s.TotalServed.Inc()
}

// Active returns the current number of open connections.
func (s *Stats) Active() int64 {
	return s.active.Load()
}
