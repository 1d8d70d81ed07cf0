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

// Package proto implements the wire protocol shared by every echobench
// engine: a 4-byte big-endian length prefix followed by that many payload
// bytes, with a zero-length prefix acting as the end-of-session terminator.
//
// Two I/O styles are exposed:
//   - SendAll / RecvAll block the calling goroutine until the transfer
//     completes or the peer errors; the thread-pool engine and the load
//     generator, which both deal in ordinary net.Conn sockets, use these.
//   - SendAllOrWouldBlock / RecvAllOrWouldBlock operate directly on a
//     non-blocking file descriptor and return as soon as the kernel would
//     otherwise block, reporting how much was actually transferred so a
//     resumable caller (FrameState, in frame.go) can pick back up on the
//     next readiness notification. The mux engines manage connections as
//     raw fds registered with epoll, not as net.Conn, so these operate at
//     that same level rather than going through a *os.File/net.FileConn
//     detour that would leave epoll watching a different descriptor than
//     the one Go's netpoller manages internally.
package proto

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock signals that a non-blocking operation transferred fewer
// bytes than requested because the socket buffer was exhausted, not
// because of an error. Callers should retry once the descriptor is
// readable/writable again.
var ErrWouldBlock = errors.New("proto: operation would block")

// ErrPeerClosed signals an orderly EOF from the remote end while a frame
// was still in flight.
var ErrPeerClosed = errors.New("proto: peer closed connection")

// RecvAllOrWouldBlock attempts to fill buf completely by reading from fd,
// which must already be non-blocking. It returns the number of bytes
// actually read. If the kernel would block before buf is full, it returns
// ErrWouldBlock alongside the partial count: not an error condition, a
// resume signal. An orderly close before any more data arrives is
// reported as ErrPeerClosed.
func RecvAllOrWouldBlock(fd int, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := unix.Read(fd, buf[read:])
		switch {
		case err == unix.EAGAIN:
			return read, ErrWouldBlock
		case err != nil:
			return read, err
		case n == 0:
			return read, ErrPeerClosed
		default:
			read += n
		}
	}
	return read, nil
}

// SendAllOrWouldBlock attempts to write buf completely to fd, which must
// already be non-blocking. It returns the number of bytes actually
// written and ErrWouldBlock if the kernel buffer filled before buf was
// exhausted.
func SendAllOrWouldBlock(fd int, buf []byte) (int, error) {
	sent := 0
	for sent < len(buf) {
		n, err := unix.Write(fd, buf[sent:])
		switch {
		case err == unix.EAGAIN:
			return sent, ErrWouldBlock
		case err != nil:
			return sent, err
		default:
			sent += n
		}
	}
	return sent, nil
}

// RecvAll blocks until buf is fully populated, conn is closed, or an error
// occurs. Used by the thread-pool engine and by the load generator, which
// both deal in ordinary blocking sockets.
func RecvAll(conn net.Conn, buf []byte) (int, error) {
	n, err := io.ReadFull(conn, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, ErrPeerClosed
	}
	return n, err
}

// SendAll blocks until buf is fully written or an error occurs.
func SendAll(conn net.Conn, buf []byte) (int, error) {
	n, err := conn.Write(buf)
	if err != nil {
		return n, err
	}
	if n < len(buf) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
