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

// Package netkind provides small, string-parseable enums for the two
// things the CLI and config layer let an operator choose: which network
// family to bind, and which concurrency engine serves it.
package netkind

import "fmt"

// Network identifies a bindable network family, mirroring the strings Go's
// own net.Listen accepts.
type Network int

const (
	NetworkTCP Network = iota
	NetworkTCP4
	NetworkTCP6
)

// String returns the net.Listen-compatible network name.
func (n Network) String() string {
	switch n {
	case NetworkTCP:
		return "tcp"
	case NetworkTCP4:
		return "tcp4"
	case NetworkTCP6:
		return "tcp6"
	default:
		return "unknown"
	}
}

// ParseNetwork parses a network name case-insensitively. Unrecognised
// input returns an error rather than silently defaulting to NetworkTCP.
func ParseNetwork(s string) (Network, error) {
	switch normalize(s) {
	case "tcp":
		return NetworkTCP, nil
	case "tcp4":
		return NetworkTCP4, nil
	case "tcp6":
		return NetworkTCP6, nil
	default:
		return 0, fmt.Errorf("netkind: unknown network %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so Network can round-trip
// through viper-backed YAML/JSON config.
func (n Network) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Network) UnmarshalText(text []byte) error {
	parsed, err := ParseNetwork(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Engine identifies which concurrency engine should serve accepted
// connections.
type Engine int

const (
	// EngineThreadPool is the goroutine-per-connection engine.
	EngineThreadPool Engine = iota
	// EngineLevelMux is the level-triggered epoll engine ("select" in
	// the original naming).
	EngineLevelMux
	// EngineEdgeMux is the edge-triggered epoll engine.
	EngineEdgeMux
)

func (e Engine) String() string {
	switch e {
	case EngineThreadPool:
		return "thread"
	case EngineLevelMux:
		return "select"
	case EngineEdgeMux:
		return "epoll"
	default:
		return "unknown"
	}
}

// ParseEngine parses an engine name case-insensitively, accepting both the
// original server naming ("thread", "select", "epoll") and the engine's
// internal package name as a convenience alias.
func ParseEngine(s string) (Engine, error) {
	switch normalize(s) {
	case "thread", "threadpool", "thread-pool":
		return EngineThreadPool, nil
	case "select", "levelmux", "level":
		return EngineLevelMux, nil
	case "epoll", "edgemux", "edge":
		return EngineEdgeMux, nil
	default:
		return 0, fmt.Errorf("netkind: unknown engine %q", s)
	}
}

func (e Engine) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Engine) UnmarshalText(text []byte) error {
	parsed, err := ParseEngine(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func normalize(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
