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

// Package clientgen is the load-generator core: a configurable number
// of persistent worker goroutines, each repeatedly dialing the target
// server, running a fixed number of request/response rounds over the
// shared wire protocol, and recording one result line per connection.
//
// This mirrors the original client's pthread-per-client design (one
// thread per simulated client, looping forever) with goroutines instead
// of a fixed-size pthread stack, and a context.Context instead of a
// bare infinite for(;;) as the way to ask every worker to stop.
package clientgen

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/cedarforge/echobench/internal/proto"
	"github.com/cedarforge/echobench/internal/statlog"
)

// Config describes one load-generation run.
type Config struct {
	// Addr is the "host:port" of the server under test.
	Addr string
	// Clients is the number of persistent worker goroutines to run,
	// matching DEFAULT_NUMBER_CLIENTS/-n.
	Clients int
	// RequestsPerConnection is how many echo round trips each worker
	// performs before sending the terminator and reconnecting,
	// matching DEFAULT_MAXIMUM_REQUESTS/-m.
	RequestsPerConnection int
	// MsgSize is the payload size in bytes of every request,
	// matching DEFAULT_MSG_SIZE/-s.
	MsgSize int
	// Pace is the delay between successive requests on one
	// connection. The original hard-coded usleep(250000); this is
	// exposed so a caller can dial it down for load testing.
	Pace time.Duration
}

// DefaultPace matches the original client's usleep(250000) between
// requests on the same connection.
const DefaultPace = 250 * time.Millisecond

// Generator runs Config.Clients worker goroutines against Config.Addr
// until its context is cancelled.
type Generator struct {
	cfg Config
	log *statlog.Log
}

// New returns a Generator that appends one result line per finished
// connection to log.
func New(cfg Config, log *statlog.Log) *Generator {
	return &Generator{cfg: cfg, log: log}
}

// Run starts Clients worker goroutines and blocks until ctx is
// cancelled and every worker has wound down its current connection.
func (g *Generator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(g.cfg.Clients)

	for i := 0; i < g.cfg.Clients; i++ {
		go func(workerID int) {
			defer wg.Done()
			g.runWorker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	return nil
}

// runWorker repeatedly dials the server and runs one session until ctx
// is cancelled, matching the original's outer while(1) reconnect loop.
func (g *Generator) runWorker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(int64(workerID) + time.Now().UnixNano()))

	for ctx.Err() == nil {
		if err := g.runSession(ctx, rng); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

// runSession dials once, runs RequestsPerConnection echo round trips,
// sends the zero-length terminator, and logs one CSV result line,
// matching the body of the original's clients() thread function.
func (g *Generator) runSession(ctx context.Context, rng *rand.Rand) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", g.cfg.Addr)
	if err != nil {
		return fmt.Errorf("clientgen: dial %s: %w", g.cfg.Addr, err)
	}
	defer conn.Close()

	msg := randomPayload(rng, g.cfg.MsgSize)
	recvBuf := make([]byte, g.cfg.MsgSize)

	pace := g.cfg.Pace
	if pace <= 0 {
		pace = DefaultPace
	}

	var requestsDone int
	var bytesReceived int64
	start := time.Now()

	for i := 0; i < g.cfg.RequestsPerConnection; i++ {
		if ctx.Err() != nil {
			break
		}

		if err := sendFrame(conn, msg); err != nil {
			return err
		}

		n, err := proto.RecvAll(conn, recvBuf)
		bytesReceived += int64(n)
		if err != nil {
			return fmt.Errorf("clientgen: recv: %w", err)
		}

		requestsDone++
		time.Sleep(pace)
	}

	elapsed := time.Since(start)

	if err := sendFrame(conn, nil); err != nil {
		return err
	}

	if g.log != nil {
		peer := fmt.Sprintf("%s requests=%d", conn.RemoteAddr(), requestsDone)
		_ = g.log.WriteLine(elapsed.Microseconds(), bytesReceived, peer)
	}
	return nil
}

// sendFrame writes body (or the zero-length terminator, if body is
// empty) as one length-prefixed frame.
func sendFrame(conn net.Conn, body []byte) error {
	var sizeBuf [proto.LenPrefixSize]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(body)))

	if _, err := proto.SendAll(conn, sizeBuf[:]); err != nil {
		return fmt.Errorf("clientgen: send size prefix: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := proto.SendAll(conn, body); err != nil {
		return fmt.Errorf("clientgen: send body: %w", err)
	}
	return nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomPayload generates a printable message of the given size,
// matching make_random_string's role in the original: filler content,
// not anything the test depends on the value of.
func randomPayload(rng *rand.Rand, size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return buf
}
