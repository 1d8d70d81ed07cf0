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

// Package driver wires together the acceptor, the chosen concurrency
// engine, and the stats log into one running server, and owns the
// parts of the process lifecycle that don't belong to any single
// engine: the open-file-descriptor limit raise, signal handling, the
// fallback accept loop for engines that don't drive their own, and the
// final served/max-concurrent summary.
package driver

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/cedarforge/echobench/internal/acceptor"
	"github.com/cedarforge/echobench/internal/atomicx"
	"github.com/cedarforge/echobench/internal/config"
	"github.com/cedarforge/echobench/internal/engine"
	"github.com/cedarforge/echobench/internal/engine/edgemux"
	"github.com/cedarforge/echobench/internal/engine/levelmux"
	"github.com/cedarforge/echobench/internal/engine/threadpool"
	"github.com/cedarforge/echobench/internal/metrics"
	"github.com/cedarforge/echobench/internal/netkind"
	"github.com/cedarforge/echobench/internal/statlog"
)

// openFileLimit is the RLIMIT_NOFILE value main.c raised at startup so
// a busy server wouldn't run out of descriptors under load.
const openFileLimit = 131072

// raiseFileLimit mirrors main.c's setrlimit(RLIMIT_NOFILE, ...) call.
// Unlike the original, a failure here is logged rather than fatal: a
// container or restrictive host may cap the hard limit below
// openFileLimit, and the server is still usable at a lower ceiling.
func raiseFileLimit() {
	limit := unix.Rlimit{Cur: openFileLimit, Max: openFileLimit}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		logrus.WithError(err).Warnf("could not raise RLIMIT_NOFILE to %d", openFileLimit)
	}
}

// Serve binds, constructs the configured engine, and runs until a
// shutdown signal arrives or the engine reports a fatal error. After the
// engine's loop ends it cleans the engine up and prints the summary line;
// a failure to open the log, bind, or start the engine returns that error
// at once, without a summary.
func Serve(cfg config.Config) error {
	raiseFileLimit()

	log, err := statlog.Open(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	defer log.Close()

	acc, err := acceptor.Bind(cfg.Network.String(), fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	defer acc.Cleanup()

	done := &atomicx.Bool{}
	eng := buildEngine(cfg.Engine, acc, log, done)

	if cfg.MetricsOn {
		metricsAddr, stopMetrics, err := metrics.Serve(cfg.MetricsAddr, eng.Stats())
		if err != nil {
			logrus.WithError(err).Warn("metrics endpoint disabled")
		} else {
			defer stopMetrics()
			logrus.WithField("addr", metricsAddr).Info("metrics endpoint listening")
		}
	}

	stopSignals := watchSignals(done, func() {
		if !eng.HandlesAccept() {
			// Unblock the fallback accept loop's otherwise-forever
			// Accept() call; see signals.go's onShutdown doc comment.
			acc.Cleanup()
		}
	}, func() (int64, int64) {
		s := eng.Stats()
		return s.TotalServed.Load(), s.MaxConcurrent.Load()
	})
	defer stopSignals()

	logrus.WithFields(logrus.Fields{
		"addr":   acc.Addr().String(),
		"engine": cfg.Engine.String(),
	}).Info("echobench server listening")

	if err := eng.Start(); err != nil {
		return fmt.Errorf("driver: engine start: %w", err)
	}

	if !eng.HandlesAccept() {
		runFallbackAcceptLoop(acc, eng, done)
	}

	eng.Cleanup()
	printSummary(eng.Stats())
	return nil
}

// buildEngine constructs the concurrency engine named by kind. The
// caller guarantees kind was already validated by config.Load, so an
// unrecognised value here would be a programming error, not user
// input, and panics accordingly.
func buildEngine(kind netkind.Engine, acc *acceptor.Acceptor, log *statlog.Log, done *atomicx.Bool) engine.Engine {
	switch kind {
	case netkind.EngineThreadPool:
		return threadpool.New(log, done)
	case netkind.EngineLevelMux:
		return levelmux.New(acc, log, done)
	case netkind.EngineEdgeMux:
		return edgemux.New(acc, log, done)
	default:
		panic(fmt.Sprintf("driver: unhandled engine kind %v", kind))
	}
}

// runFallbackAcceptLoop drives the acceptor for engines that expect
// connections pushed in via AddClient, matching the non-handles_accept
// branch of the original serve() loop.
func runFallbackAcceptLoop(acc *acceptor.Acceptor, eng engine.Engine, done *atomicx.Bool) {
	for !done.Get() {
		peer, err := acc.AcceptOne()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithError(err).Warn("accept failed")
			continue
		}

		if err := eng.AddClient(engine.Client{Conn: peer.Conn, Addr: peer.Addr}); err != nil {
			logrus.WithError(err).Warn("engine rejected new client")
			peer.Conn.Close()
		}
	}
}

// printSummary reproduces main.c's closing banner: a cyan line on
// stderr for a human watching the terminal, plus a structured logrus
// line for anything scraping logs.
func printSummary(stats *engine.Stats) {
	served := stats.TotalServed.Load()
	maxConcurrent := stats.MaxConcurrent.Load()

	out := colorable.NewColorable(os.Stderr)
	banner := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(out, "%s\n", banner(fmt.Sprintf(
		"Total served: %d; Max concurrent connections: %d", served, maxConcurrent)))

	logrus.WithFields(logrus.Fields{
		"total_served":   served,
		"max_concurrent": maxConcurrent,
	}).Info("server shut down")
}
