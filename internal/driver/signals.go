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

package driver

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/cedarforge/echobench/internal/atomicx"
)

// watchSignals mirrors the original server's two-tier handler split:
// SIGINT/SIGQUIT ask for an orderly shutdown (set done, let the current
// accept/event loop wind down on its own), while SIGTERM is treated as
// the fatal path that prints the running totals before the process
// exits. Go delivers both through ordinary goroutine code rather than a
// restricted signal-handler context, which already gives us the
// self-pipe behaviour the original had to hand-roll with atomic_int.
//
// onShutdown runs once, from this watcher goroutine, right after done
// is set for a non-fatal signal. The fallback accept loop uses it to
// unblock its otherwise-forever-blocking net.Listener.Accept call,
// since Go (unlike the original's un-restarted accept(2)) does not
// interrupt a blocked syscall just because a signal was delivered.
func watchSignals(done *atomicx.Bool, onShutdown func(), summary func() (served, maxConcurrent int64)) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGTERM:
					served, maxConcurrent := summary()
					logrus.WithFields(logrus.Fields{
						"total_served":   served,
						"max_concurrent": maxConcurrent,
					}).Warn("received SIGTERM, exiting immediately")
					os.Exit(1)
				default:
					logrus.WithField("signal", sig.String()).Info("caught signal; shutting down")
					done.Set(true)
					if onShutdown != nil {
						onShutdown()
					}
					return
				}
			case <-stop:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(stop)
	}
}
