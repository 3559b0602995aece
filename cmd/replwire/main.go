// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// replwire submits a code fragment to a running kernel and streams its
// output. The fragment comes from the command line or, with no
// arguments, from stdin:
//
//	replwire 'x = 1'
//	replwire 'x + 1'
//	echo 'print("hi")' | replwire
//
// Stdout and stderr chunks are relayed live as the kernel produces
// them. The fragment's return value, if any, is printed last. Display
// artifacts are written to the artifact directory when one is
// configured (--artifact-dir or output.artifact_dir in the config
// file).
//
// Reusing --session across invocations keeps the same interpreter
// state on the kernel side, so variables persist between commands.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/replwire/replwire/lib/aggregate"
	"github.com/replwire/replwire/lib/config"
	"github.com/replwire/replwire/lib/process"
	"github.com/replwire/replwire/session"
	"github.com/replwire/replwire/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var transportFlag string
	var addressFlag string
	var sessionID string
	var artifactDir string
	var logLevel string

	flagSet := pflag.NewFlagSet("replwire", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to replwire.yaml (default: $REPLWIRE_CONFIG)")
	flagSet.StringVar(&transportFlag, "transport", "", "kernel transport: unix, tcp, or websocket")
	flagSet.StringVar(&addressFlag, "address", "", "kernel address in the transport's format")
	flagSet.StringVar(&sessionID, "session", "", "session id (reuse to keep interpreter state)")
	flagSet.StringVar(&artifactDir, "artifact-dir", "", "write display artifacts to this directory")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if transportFlag != "" {
		cfg.Kernel.Transport = config.TransportKind(transportFlag)
	}
	if addressFlag != "" {
		cfg.Kernel.Address = addressFlag
	}
	if artifactDir != "" {
		cfg.Output.ArtifactDir = artifactDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	code, err := readCode(flagSet.Args())
	if err != nil {
		return err
	}

	interval, err := cfg.Heartbeat.ParseInterval()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := session.Connect(ctx, session.Options{
		Dialer:            dialerFor(cfg.Kernel.Transport),
		Address:           cfg.Kernel.Address,
		SessionID:         sessionID,
		HeartbeatInterval: interval,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.Submit(ctx, code, aggregate.Callbacks{
		OnStdout: func(text string) { fmt.Fprint(os.Stdout, text) },
		OnStderr: func(text string) { fmt.Fprint(os.Stderr, styleStderr(text)) },
	})
	if err != nil {
		return err
	}

	return renderResult(result, cfg.Output.ArtifactDir)
}

// readCode joins the positional arguments, or reads stdin when there
// are none.
func readCode(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading code from stdin: %w", err)
	}
	code := strings.TrimSpace(string(data))
	if code == "" {
		return "", fmt.Errorf("no code given on the command line or stdin")
	}
	return code, nil
}

// loadConfig loads the flagged path, the environment path, or the
// defaults, in that order of preference.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("REPLWIRE_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

func dialerFor(kind config.TransportKind) transport.Dialer {
	switch kind {
	case config.TransportTCP:
		return &transport.TCPDialer{}
	case config.TransportWebSocket:
		return &transport.WebSocketDialer{}
	default:
		return &transport.UnixDialer{}
	}
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
