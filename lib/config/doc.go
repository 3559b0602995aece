// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for replwire commands.
//
// Configuration is loaded from a single YAML file specified by:
//   - REPLWIRE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery; command-line flags
// override individual values after the file is loaded.
package config
