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

// Package statlog implements the append-only, single-writer statistics log
// shared by every engine and by the load generator.
//
// Every connection, on completion, submits one CSV line describing the
// transfer it just finished. A single background goroutine owns the
// underlying file and serializes all writes onto it, the same contract the
// original server got from POSIX aio_write plus a busy-polled aio_error:
// callers hand off a line and move on, and the line lands in the file in
// submission order without callers ever touching the fd themselves.
package statlog

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned by WriteLine once the log has been closed.
var ErrClosed = errors.New("statlog: log is closed")

// Log is a single append-only CSV file with one writer goroutine.
//
// sendMu is held for reading by every WriteLine call and for writing by
// Close: that ordering is what lets Close close the lines channel without
// ever racing a concurrent send on it.
type Log struct {
	file *os.File

	sendMu sync.RWMutex
	lines  chan string
	closed bool

	wg sync.WaitGroup

	errMu    sync.Mutex
	writeErr error
}

// backlog bounds how many submitted-but-not-yet-written lines may queue
// before WriteLine blocks the calling goroutine. 4096 comfortably absorbs
// a burst of connections finishing at the same instant without letting an
// unbounded backlog grow while the writer goroutine catches up.
const backlog = 4096

// Open creates (truncating any existing contents) the log file at path and
// starts its writer goroutine.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("statlog: open %s: %w", path, err)
	}

	l := &Log{
		file:  f,
		lines: make(chan string, backlog),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

func (l *Log) run() {
	defer l.wg.Done()

	for line := range l.lines {
		if _, err := l.file.WriteString(line); err != nil {
			l.errMu.Lock()
			if l.writeErr == nil {
				l.writeErr = err
			}
			l.errMu.Unlock()
		}
	}
}

// WriteLine formats and submits one result line in
// "<transfer_time_us>,<bytes>,<peer>\n" form, matching the csv format the
// original server wrote with snprintf before calling log_msg.
func (l *Log) WriteLine(transferTimeUs, bytesTransferred int64, peer string) error {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()

	if l.closed {
		return ErrClosed
	}

	l.lines <- fmt.Sprintf("%d,%d,%s\n", transferTimeUs, bytesTransferred, peer)
	return nil
}

// Flush forces any data buffered by the OS to stable storage, the Go
// analogue of the original's fsync-on-signal handler.
func (l *Log) Flush() error {
	return l.file.Sync()
}

// Close stops accepting new lines, waits for the writer goroutine to drain
// everything already submitted, and closes the underlying file. It returns
// the first write error encountered, if any. Close is idempotent.
func (l *Log) Close() error {
	l.sendMu.Lock()
	alreadyClosed := l.closed
	if !alreadyClosed {
		l.closed = true
		close(l.lines)
	}
	l.sendMu.Unlock()

	l.wg.Wait()

	l.errMu.Lock()
	writeErr := l.writeErr
	l.errMu.Unlock()

	if alreadyClosed {
		return writeErr
	}

	closeErr := l.file.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
