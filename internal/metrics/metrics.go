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

// Package metrics exports an engine.Stats snapshot as Prometheus
// gauges/counters over an HTTP /metrics endpoint. The original had no
// equivalent (its only output was the CSV transfer log and the final
// stdout summary); this is an addition the spec's comparative-benchmark
// framing calls for but the distillation left unnamed, in the idiom the
// rest of the pack uses for service instrumentation.
package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cedarforge/echobench/internal/engine"
)

const namespace = "echobench"

// collector adapts an *engine.Stats into the prometheus.Collector
// interface by reading it fresh on every scrape rather than mirroring
// its counters into separate prometheus values, so the exported series
// can never drift from what Stats itself reports.
type collector struct {
	stats *engine.Stats

	totalServed   *prometheus.Desc
	maxConcurrent *prometheus.Desc
	active        *prometheus.Desc
}

func newCollector(stats *engine.Stats) *collector {
	return &collector{
		stats: stats,
		totalServed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "total_served_total"),
			"Connections that have fully completed (reached the terminator or errored out).",
			nil, nil,
		),
		maxConcurrent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "max_concurrent"),
			"High-watermark of simultaneously open connections observed so far.",
			nil, nil,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_connections"),
			"Connections currently open.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalServed
	ch <- c.maxConcurrent
	ch <- c.active
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.totalServed, prometheus.CounterValue, float64(c.stats.TotalServed.Load()))
	ch <- prometheus.MustNewConstMetric(c.maxConcurrent, prometheus.GaugeValue, float64(c.stats.MaxConcurrent.Load()))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(c.stats.Active()))
}

// Serve binds addr and starts a /metrics HTTP server on it in the
// background, returning the actual bound address (useful when addr
// ends in ":0") and a function that shuts the server down. A bind
// failure is returned rather than panicking: the caller decides
// whether a dead metrics endpoint should stop the whole process.
func Serve(addr string, stats *engine.Stats) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", func() {}, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(newCollector(stats))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Warn("metrics server stopped")
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return ln.Addr().String(), stop, nil
}
