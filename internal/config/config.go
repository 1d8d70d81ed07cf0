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

// Package config layers the server's runtime settings the way the
// teacher's components favor: flags take precedence over environment
// variables, which take precedence over a YAML file, which takes
// precedence over compiled-in defaults. spf13/viper owns that layering;
// this package just describes the shape and validates the result.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cedarforge/echobench/internal/netkind"
)

// Defaults mirror DEFAULT_PORT and the original's documented server
// default ("-s epoll").
const (
	DefaultPort       = 8005
	DefaultLogPath    = "transfers.txt"
	DefaultMetricsOn  = false
	DefaultMetricAddr = ":9090"
)

// Config is the fully resolved, validated set of settings the driver
// needs to bind, serve, and report.
type Config struct {
	Port        uint16
	Network     netkind.Network
	Engine      netkind.Engine
	LogPath     string
	MetricsAddr string
	MetricsOn   bool
}

// New builds a viper instance pre-seeded with defaults and wired to read
// ECHOBENCH_-prefixed environment variables, matching the
// flags-over-env-over-file-over-defaults precedence every teacher
// component that takes a *viper.Viper follows.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ECHOBENCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("port", DefaultPort)
	v.SetDefault("network", "tcp")
	v.SetDefault("server", "epoll")
	v.SetDefault("log-path", DefaultLogPath)
	v.SetDefault("metrics-addr", DefaultMetricAddr)
	v.SetDefault("metrics-on", DefaultMetricsOn)
	return v
}

// Load reads the config file at path (if non-empty) into v, then
// resolves and validates the final Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	port := v.GetInt("port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("config: port %d out of range", port)
	}

	network, err := netkind.ParseNetwork(v.GetString("network"))
	if err != nil {
		return Config{}, err
	}

	engine, err := netkind.ParseEngine(v.GetString("server"))
	if err != nil {
		return Config{}, err
	}

	logPath := v.GetString("log-path")
	if logPath == "" {
		return Config{}, fmt.Errorf("config: log-path must not be empty")
	}

	return Config{
		Port:        uint16(port),
		Network:     network,
		Engine:      engine,
		LogPath:     logPath,
		MetricsAddr: v.GetString("metrics-addr"),
		MetricsOn:   v.GetBool("metrics-on"),
	}, nil
}
