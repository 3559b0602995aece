// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for replwire
// commands: fatal error reporting to stderr before the structured
// logger exists, and process exit after an unrecoverable error in
// main(). All other output in the binaries goes through slog or the
// CLI rendering layer.
package process
