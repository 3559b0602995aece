// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind selects how a command reaches the kernel.
type TransportKind string

const (
	// TransportUnix dials a Unix domain socket. Address is the socket
	// path.
	TransportUnix TransportKind = "unix"

	// TransportTCP dials a TCP endpoint. Address is host:port.
	TransportTCP TransportKind = "tcp"

	// TransportWebSocket uses WebSocket framing. Address is a ws://
	// URL when dialing and host:port when serving.
	TransportWebSocket TransportKind = "websocket"
)

// Config is the configuration for replwire commands.
type Config struct {
	// Kernel configures how to reach the kernel.
	Kernel KernelConfig `yaml:"kernel"`

	// Heartbeat configures the liveness prober.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Output configures result handling.
	Output OutputConfig `yaml:"output"`

	// LogLevel is the slog level name: debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// KernelConfig names the kernel endpoint.
type KernelConfig struct {
	// Transport is the transport kind: unix, tcp, or websocket.
	Transport TransportKind `yaml:"transport"`

	// Address is the endpoint in the transport's address format.
	Address string `yaml:"address"`
}

// HeartbeatConfig configures the liveness prober.
type HeartbeatConfig struct {
	// Interval is the spacing between probes, as a Go duration string
	// like "5s". Empty means the transport default.
	Interval string `yaml:"interval"`
}

// ParseInterval returns the probe interval as a duration. Zero when
// the field is empty.
func (h HeartbeatConfig) ParseInterval() (time.Duration, error) {
	if h.Interval == "" {
		return 0, nil
	}
	interval, err := time.ParseDuration(h.Interval)
	if err != nil {
		return 0, fmt.Errorf("config: heartbeat interval: %w", err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("config: negative heartbeat interval %v", interval)
	}
	return interval, nil
}

// OutputConfig configures result handling.
type OutputConfig struct {
	// ArtifactDir is where display artifacts are written. Empty
	// disables artifact files.
	ArtifactDir string `yaml:"artifact_dir"`
}

// Default returns the default configuration: a Unix socket under the
// user's runtime directory and info-level logging.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			Transport: TransportUnix,
			Address:   "/run/replwire/kernel.sock",
		},
		LogLevel: "info",
	}
}

// Load loads configuration from the REPLWIRE_CONFIG environment
// variable. Fails if the variable is not set; commands that accept a
// --config flag call LoadFile directly.
func Load() (*Config, error) {
	path := os.Getenv("REPLWIRE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: REPLWIRE_CONFIG environment variable not set; " +
			"set it to the path of your replwire.yaml file, or use the --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Kernel.Transport {
	case TransportUnix, TransportTCP, TransportWebSocket:
	default:
		return fmt.Errorf("unknown transport %q", c.Kernel.Transport)
	}
	if c.Kernel.Address == "" {
		return fmt.Errorf("kernel address is empty")
	}
	if _, err := c.Heartbeat.ParseInterval(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
