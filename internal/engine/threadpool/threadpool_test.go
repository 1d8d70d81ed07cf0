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

package threadpool

import (
	"encoding/binary"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cedarforge/echobench/internal/atomicx"
	"github.com/cedarforge/echobench/internal/engine"
	"github.com/cedarforge/echobench/internal/statlog"
)

func newTestEngine(t *testing.T) (*Engine, *statlog.Log) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.csv")
	log, err := statlog.Open(path)
	if err != nil {
		t.Fatalf("statlog.Open: %v", err)
	}

	var done atomicx.Bool
	e := New(log, &done)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		e.Cleanup()
		log.Close()
	})
	return e, log
}

func dialPair(t *testing.T) (serverSide, clientSide net.Conn, addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server := <-acceptCh
	return server, client, ln.Addr().String()
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := conn.Write(prefix[:]); err != nil {
		t.Fatalf("write prefix: %v", err)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			t.Fatalf("write payload: %v", err)
		}
	}
}

func readExactly(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	read := 0
	for read < n {
		m, err := conn.Read(buf[read:])
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		read += m
	}
	return buf
}

func TestEngineEchoesAndRecordsStats(t *testing.T) {
	e, log := newTestEngine(t)

	server, client, _ := dialPair(t)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		if err := e.AddClient(engine.Client{Conn: server}); err != nil {
			t.Errorf("AddClient: %v", err)
		}
		close(done)
	}()

	payload := []byte("round trip payload")
	writeFrame(t, client, payload)
	echoed := readExactly(t, client, len(payload))
	if string(echoed) != string(payload) {
		t.Fatalf("got %q, want %q", echoed, payload)
	}

	writeFrame(t, client, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AddClient did not return")
	}

	// AddClient returns once the connection is handed to a worker; wait
	// for that worker to finish serving it.
	deadline := time.Now().Add(2 * time.Second)
	for e.Stats().TotalServed.Load() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := log.Close(); err != nil {
		t.Fatalf("log.Close: %v", err)
	}

	if e.Stats().TotalServed.Load() != 1 {
		t.Fatalf("TotalServed = %d, want 1", e.Stats().TotalServed.Load())
	}
}

func TestEngineHandlesAcceptIsFalse(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.HandlesAccept() {
		t.Fatal("thread-pool engine must not claim to handle accept itself")
	}
}

func TestEngineOverflowsBeyondPoolSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	log, err := statlog.Open(path)
	if err != nil {
		t.Fatalf("statlog.Open: %v", err)
	}
	defer log.Close()

	var done atomicx.Bool
	e := New(log, &done)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Cleanup()

	const n = PoolSize + 5
	var wg sync.WaitGroup
	var conns []net.Conn
	for i := 0; i < n; i++ {
		server, client, _ := dialPair(t)
		conns = append(conns, client)
		wg.Add(1)
		go func(s net.Conn) {
			defer wg.Done()
			if err := e.AddClient(engine.Client{Conn: s}); err != nil {
				t.Errorf("AddClient: %v", err)
			}
		}(server)
	}
	wg.Wait()

	for _, c := range conns {
		writeFrame(t, c, nil)
		c.Close()
	}
	time.Sleep(200 * time.Millisecond)

	if got := e.Stats().TotalServed.Load(); got != int64(n) {
		t.Fatalf("TotalServed = %d, want %d", got, n)
	}
}
