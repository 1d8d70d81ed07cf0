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

// Command echoclient is the load generator: it dials a running
// echoserver with many persistent simulated clients and records one
// result line per finished connection, for comparing the three
// concurrency engines under the same offered load.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cedarforge/echobench/internal/clientgen"
	"github.com/cedarforge/echobench/internal/statlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		ip          string
		port        uint16
		numClients  int
		maxRequests int
		msgSize     int
		paceMillis  int
		resultPath  string
	)

	cmd := &cobra.Command{
		Use:   "echoclient",
		Short: "Drive load against an echobench server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := statlog.Open(resultPath)
			if err != nil {
				return err
			}
			defer log.Close()

			gen := clientgen.New(clientgen.Config{
				Addr:                  net.JoinHostPort(ip, fmt.Sprintf("%d", port)),
				Clients:               numClients,
				RequestsPerConnection: maxRequests,
				MsgSize:               msgSize,
				Pace:                  time.Duration(paceMillis) * time.Millisecond,
			}, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			go func() {
				<-sigCh
				logrus.Info("caught interrupt; winding down workers")
				cancel()
			}()

			return gen.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&ip, "ip", "i", "127.0.0.1", "server IP address")
	flags.Uint16VarP(&port, "port", "p", 8005, "server port")
	flags.IntVarP(&numClients, "clients", "n", 5000, "number of persistent simulated clients")
	flags.IntVarP(&maxRequests, "max", "m", 1, "echo round trips per connection before reconnecting")
	flags.IntVarP(&msgSize, "msg-size", "s", 1024, "size in bytes of each request payload")
	flags.IntVar(&paceMillis, "pace-ms", int(clientgen.DefaultPace.Milliseconds()), "delay between requests on one connection, in milliseconds")
	flags.StringVar(&resultPath, "result-path", "result.txt", "path to the per-connection result log")

	return cmd
}
