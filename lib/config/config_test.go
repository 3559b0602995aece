// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replwire.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
kernel:
  transport: tcp
  address: "127.0.0.1:9923"
heartbeat:
  interval: 2s
log_level: debug
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kernel.Transport != TransportTCP {
		t.Errorf("transport = %q, want tcp", cfg.Kernel.Transport)
	}
	if cfg.Kernel.Address != "127.0.0.1:9923" {
		t.Errorf("address = %q", cfg.Kernel.Address)
	}
	interval, err := cfg.Heartbeat.ParseInterval()
	if err != nil {
		t.Fatalf("parse interval: %v", err)
	}
	if interval != 2*time.Second {
		t.Errorf("heartbeat interval = %v, want 2s", interval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadFileKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, `
kernel:
  address: /tmp/kernel.sock
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kernel.Transport != TransportUnix {
		t.Errorf("transport = %q, want the unix default", cfg.Kernel.Transport)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want the info default", cfg.LogLevel)
	}
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"unknown transport", "kernel:\n  transport: carrier-pigeon\n  address: x\n"},
		{"empty address", "kernel:\n  transport: tcp\n  address: \"\"\n"},
		{"unknown log level", "log_level: loud\n"},
		{"bad heartbeat interval", "heartbeat:\n  interval: soon\n"},
		{"malformed yaml", "kernel: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tc.content)); err == nil {
				t.Error("bad config loaded without error")
			}
		})
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("REPLWIRE_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Error("Load succeeded with no REPLWIRE_CONFIG set")
	}
}
