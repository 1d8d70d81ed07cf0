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

//go:build linux

package edgemux

import (
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cedarforge/echobench/internal/acceptor"
	"github.com/cedarforge/echobench/internal/atomicx"
	"github.com/cedarforge/echobench/internal/statlog"
)

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
	acc, err := acceptor.Bind("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer acc.Cleanup()

	path := filepath.Join(t.TempDir(), "stats.csv")
	log, err := statlog.Open(path)
	if err != nil {
		t.Fatalf("statlog.Open: %v", err)
	}

	var done atomicx.Bool
	e := New(acc, log, &done)

	startErr := make(chan error, 1)
	go func() { startErr <- e.Start() }()

	client, err := net.Dial("tcp", acc.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	payload := []byte("edge triggered round trip, drained fully")
	writeFrame(t, client, payload)
	echoed := readExactly(t, client, len(payload))
	if string(echoed) != string(payload) {
		t.Fatalf("got %q, want %q", echoed, payload)
	}

	writeFrame(t, client, nil)
	time.Sleep(100 * time.Millisecond)

	done.Set(true)
	select {
	case err := <-startErr:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down after done was set")
	}

	if err := log.Close(); err != nil {
		t.Fatalf("log.Close: %v", err)
	}

	if got := e.Stats().TotalServed.Load(); got != 1 {
		t.Fatalf("TotalServed = %d, want 1", got)
	}
}

func TestEngineHandlesAcceptIsTrue(t *testing.T) {
	acc, err := acceptor.Bind("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer acc.Cleanup()
	var done atomicx.Bool
	e := New(acc, nil, &done)
	if !e.HandlesAccept() {
		t.Fatal("edge-mux engine must claim to handle accept itself")
	}
}

func TestEngineMultipleMessagesOneConnection(t *testing.T) {
	acc, err := acceptor.Bind("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer acc.Cleanup()

	var done atomicx.Bool
	e := New(acc, nil, &done)

	startErr := make(chan error, 1)
	go func() { startErr <- e.Start() }()

	client, err := net.Dial("tcp", acc.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	msgs := [][]byte{[]byte("first"), []byte("second message, a bit longer this time"), []byte("3")}
	for _, m := range msgs {
		writeFrame(t, client, m)
		echoed := readExactly(t, client, len(m))
		if string(echoed) != string(m) {
			t.Fatalf("got %q, want %q", echoed, m)
		}
	}

	writeFrame(t, client, nil)
	time.Sleep(100 * time.Millisecond)
	done.Set(true)

	select {
	case err := <-startErr:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down after done was set")
	}
}
