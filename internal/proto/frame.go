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

package proto

import (
	"encoding/binary"
	"time"
)

// Phase identifies which half of a frame FrameState is currently reading.
type Phase int

const (
	// PhaseSize is reading the 4-byte big-endian length prefix.
	PhaseSize Phase = iota
	// PhaseBody is reading the payload named by the completed prefix.
	PhaseBody
)

// LenPrefixSize is the width, in bytes, of the frame length prefix.
const LenPrefixSize = 4

// FrameState is a resumable echo state machine for one connection. A
// single call to Step performs as much work as the socket allows without
// blocking, then returns. The mux engines drive it repeatedly, once per
// readiness notification. The thread-pool engine does not use it: it runs
// its own blocking loop over net.Conn.
//
// The state machine mirrors the transferred/msg_size/partial_msg_size
// bookkeeping of the original server: a connection serves an unbounded
// sequence of messages, each framed by its own length prefix, until a
// zero-length prefix arrives and ends the session.
type FrameState struct {
	phase Phase

	sizeBuf    [LenPrefixSize]byte
	sizeFilled int

	msgSize uint32
	// body holds the current message's payload and is kept alive across
	// frames on this connection rather than reallocated per message: it
	// only grows (never shrinks) when a frame larger than its current
	// capacity arrives, mirroring request->msg's malloc-once-per-connection
	// lifetime in the original.
	body   []byte
	filled int

	// Transferred is the total byte count moved for this connection
	// across every message, size prefixes included. It feeds the stats
	// line written when the connection ends.
	Transferred int64

	// TransferTime accumulates wall-clock time spent actively moving
	// bytes for this connection, the same figure the original recorded
	// with gettimeofday around each handle_request call.
	TransferTime time.Duration

	// Done is set once a zero-length prefix has been read: the peer is
	// finished and the connection should be torn down.
	Done bool
}

// StepResult reports what Step accomplished on this call.
type StepResult struct {
	// WouldBlock is true if the socket had no more data/room to give
	// and Step returned only because of that, not an error.
	WouldBlock bool
}

// Step advances the state machine as far as the non-blocking fd allows.
// fd must already be in non-blocking mode. Step returns when the
// connection ends (Done becomes true), an error occurs, or the socket
// would block.
func (f *FrameState) Step(fd int) (StepResult, error) {
	start := time.Now()
	defer func() { f.TransferTime += time.Since(start) }()

	for {
		switch f.phase {
		case PhaseSize:
			n, err := RecvAllOrWouldBlock(fd, f.sizeBuf[f.sizeFilled:])
			f.Transferred += int64(n)
			f.sizeFilled += n
			if err == ErrWouldBlock {
				return StepResult{WouldBlock: true}, nil
			}
			if err != nil {
				return StepResult{}, err
			}

			f.msgSize = binary.BigEndian.Uint32(f.sizeBuf[:])
			f.sizeFilled = 0
			if f.msgSize == 0 {
				f.Done = true
				return StepResult{}, nil
			}
			if cap(f.body) < int(f.msgSize) {
				f.body = make([]byte, f.msgSize)
			} else {
				f.body = f.body[:f.msgSize]
			}
			f.filled = 0
			f.phase = PhaseBody

		case PhaseBody:
			n, err := RecvAllOrWouldBlock(fd, f.body[f.filled:])
			f.Transferred += int64(n)
			f.filled += n
			if err == ErrWouldBlock {
				return StepResult{WouldBlock: true}, nil
			}
			if err != nil {
				return StepResult{}, err
			}

			if err := echoBody(fd, f.body); err != nil {
				return StepResult{}, err
			}
			f.phase = PhaseSize
		}
	}
}

// echoBody writes the just-received payload back to the peer. The
// original spins on send_data until every byte clears the socket buffer
// or a real error occurs; SendAllOrWouldBlock's ErrWouldBlock return is
// therefore retried here rather than propagated, matching that spin.
func echoBody(fd int, body []byte) error {
	sent := 0
	for sent < len(body) {
		n, err := SendAllOrWouldBlock(fd, body[sent:])
		sent += n
		if err == ErrWouldBlock {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the state machine so the underlying fd slot can be reused
// by a new connection, mirroring the original's reset of msg/msg_size/
// partial_msg_size/transferred after a client disconnects.
func (f *FrameState) Reset() {
	*f = FrameState{}
}
