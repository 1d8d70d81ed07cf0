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

package statlog

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestWriteLineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := l.WriteLine(1234, 4096, "127.0.0.1:5000"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "1234,4096,127.0.0.1:5000\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestWriteLineConcurrentSubmission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.WriteLine(int64(i), int64(i*2), "10.0.0.1:9"); err != nil {
				t.Errorf("WriteLine: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open for read: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	if count != n {
		t.Fatalf("got %d lines, want %d", count, n)
	}
}

func TestWriteLineAfterCloseReturnsErrClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := l.WriteLine(1, 1, "x"); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
