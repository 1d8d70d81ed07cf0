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

package clientgen

import (
	"context"
	"encoding/binary"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cedarforge/echobench/internal/statlog"
)

// echoServer accepts every connection on ln, each on its own
// goroutine, and echoes every length-prefixed frame it receives until
// the zero-length terminator. It stands in for a real server so
// clientgen can be tested in isolation from any particular engine,
// across however many reconnects a worker makes before its context
// expires.
func echoServer(ln net.Listener) {
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					var sizeBuf [4]byte
					if _, err := readFull(conn, sizeBuf[:]); err != nil {
						return
					}
					size := binary.BigEndian.Uint32(sizeBuf[:])
					if size == 0 {
						return
					}
					body := make([]byte, size)
					if _, err := readFull(conn, body); err != nil {
						return
					}
					if _, err := conn.Write(body); err != nil {
						return
					}
				}
			}()
		}
	}()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestGeneratorRunsSessionsAndLogsResults(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	echoServer(ln)

	dir := t.TempDir()
	log, err := statlog.Open(filepath.Join(dir, "result.txt"))
	if err != nil {
		t.Fatalf("statlog.Open: %v", err)
	}

	gen := New(Config{
		Addr:                  ln.Addr().String(),
		Clients:               1,
		RequestsPerConnection: 3,
		MsgSize:               16,
		Pace:                  time.Millisecond,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := gen.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := log.Close(); err != nil {
		t.Fatalf("log.Close: %v", err)
	}

	contents, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(contents) == 0 {
		t.Fatal("expected at least one logged result line")
	}
}

func TestRandomPayloadIsRequestedSize(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	payload := randomPayload(rng, 32)
	if len(payload) != 32 {
		t.Fatalf("len(payload) = %d, want 32", len(payload))
	}
}
