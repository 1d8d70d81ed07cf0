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

// Package acceptor wraps a bound, listening TCP socket. It is the one
// piece of state every engine shares: each engine pulls new connections
// off the same acceptor, either via the blocking Accept loop (thread
// pool, and the driver's own fallback loop) or by registering the
// acceptor's raw descriptor directly with epoll (the two mux engines).
package acceptor

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// Peer is one accepted connection together with the address it came from.
type Peer struct {
	Conn net.Conn
	Addr netip.AddrPort
}

// Acceptor owns a bound, listening TCP socket with SO_REUSEADDR set,
// mirroring the socket setup serve() performed in the original server
// before handing off to server->start.
type Acceptor struct {
	ln *net.TCPListener
}

// Bind resolves, binds and listens on the given network/port, enabling
// SO_REUSEADDR the way the original's serve() did via setsockopt.
func Bind(network, addr string) (*Acceptor, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("acceptor: listen %s %s: %w", network, addr, err)
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("acceptor: %s is not a TCP listener", network)
	}

	return &Acceptor{ln: tcpLn}, nil
}

// Addr returns the bound local address.
func (a *Acceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// AcceptOne blocks until a client connects or the listener is closed. The
// thread-pool engine and the driver's own accept-loop fallback both drive
// the acceptor this way.
func (a *Acceptor) AcceptOne() (Peer, error) {
	conn, err := a.ln.Accept()
	if err != nil {
		return Peer{}, err
	}

	tcpAddr := conn.RemoteAddr().(*net.TCPAddr)
	ip, _ := netip.AddrFromSlice(tcpAddr.IP)
	return Peer{
		Conn: conn,
		Addr: netip.AddrPortFrom(ip.Unmap(), uint16(tcpAddr.Port)),
	}, nil
}

// RawFD exposes the listening socket's file descriptor so the epoll-based
// mux engines can register it directly. The returned fd stays valid only
// as long as the Acceptor itself stays alive and unclosed: callers must
// not close it themselves.
func (a *Acceptor) RawFD() (int, error) {
	rc, err := a.ln.SyscallConn()
	if err != nil {
		return 0, err
	}

	var fd int
	err = rc.Control(func(f uintptr) {
		fd = int(f)
	})
	if err != nil {
		return 0, err
	}
	return fd, nil
}

// AcceptRaw accepts one connection directly off listenFD (obtained from
// RawFD) with unix.Accept4, returning the client's own raw descriptor
// rather than a net.Conn. The mux engines need this: a net.Conn obtained
// via net.FileConn duplicates the descriptor internally, which would
// leave epoll watching a different fd than the one the engine reads and
// writes. The returned fd is already non-blocking (SOCK_NONBLOCK) and the
// caller owns it exclusively, responsible for eventually closing it.
func (a *Acceptor) AcceptRaw(listenFD int) (fd int, addr netip.AddrPort, err error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return 0, netip.AddrPort{}, err
	}

	return nfd, peerAddrPort(sa), nil
}

func peerAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(s.Addr), uint16(s.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(s.Addr), uint16(s.Port))
	default:
		return netip.AddrPort{}
	}
}

// Cleanup closes the listening socket, mirroring cleanup_acceptor.
func (a *Acceptor) Cleanup() error {
	return a.ln.Close()
}
