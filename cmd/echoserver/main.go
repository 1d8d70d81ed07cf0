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

// Command echoserver runs the comparative echo benchmark server: bind
// one port, serve framed echo connections through one of three
// interchangeable concurrency engines (thread, select, epoll), and
// print a served/max-concurrent summary on exit.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cedarforge/echobench/internal/config"
	"github.com/cedarforge/echobench/internal/driver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "echoserver",
		Short: "Run the echobench TCP echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return driver.Serve(cfg)
		},
	}

	flags := cmd.Flags()
	flags.Uint16P("port", "p", config.DefaultPort, "port on which to listen for connections")
	flags.StringP("server", "s", "epoll", "concurrency engine: thread, select, or epoll")
	flags.String("network", "tcp", "network family to bind: tcp, tcp4, or tcp6")
	flags.String("log-path", config.DefaultLogPath, "path to the per-connection transfer log")
	flags.Bool("metrics-on", config.DefaultMetricsOn, "serve Prometheus metrics")
	flags.String("metrics-addr", config.DefaultMetricAddr, "address the metrics endpoint listens on")
	flags.StringVar(&cfgFile, "config", "", "optional YAML config file, overriding defaults but overridden by flags/env")

	for _, name := range []string{"port", "server", "network", "log-path", "metrics-on", "metrics-addr"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			logrus.WithError(err).Fatal(fmt.Sprintf("bind flag %s", name))
		}
	}

	return cmd
}
