// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// replwire-kernel serves a persistent Lua kernel over the replwire
// wire protocol. Clients connect with the replwire CLI or the session
// package; each session gets its own interpreter whose globals persist
// across submissions.
//
// The endpoint comes from the config file (REPLWIRE_CONFIG or
// --config) and can be overridden per invocation:
//
//	replwire-kernel --transport unix --address /run/replwire/kernel.sock
//	replwire-kernel --transport tcp --address 127.0.0.1:9923
//	replwire-kernel --transport websocket --address 127.0.0.1:9924
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/replwire/replwire/kernel"
	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/config"
	"github.com/replwire/replwire/lib/process"
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
	var logLevel string

	flagSet := pflag.NewFlagSet("replwire-kernel", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to replwire.yaml (default: $REPLWIRE_CONFIG)")
	flagSet.StringVar(&transportFlag, "transport", "", "listen transport: unix, tcp, or websocket")
	flagSet.StringVar(&addressFlag, "address", "", "listen address in the transport's format")
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

	listener, err := listen(cfg)
	if err != nil {
		return err
	}
	defer listener.Close()
	logger.Info("kernel listening",
		"transport", cfg.Kernel.Transport, "address", listener.Address())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := kernel.NewServer(clock.Real(), logger)
	return server.Serve(ctx, listener)
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

func listen(cfg *config.Config) (transport.Listener, error) {
	switch cfg.Kernel.Transport {
	case config.TransportUnix:
		return transport.NewUnixListener(cfg.Kernel.Address)
	case config.TransportTCP:
		return transport.NewTCPListener(cfg.Kernel.Address)
	case config.TransportWebSocket:
		return transport.NewWebSocketListener(cfg.Kernel.Address)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Kernel.Transport)
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
