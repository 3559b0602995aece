// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package aggregate assembles the caller-facing result of one
// execution from its ordered event sequence: concatenated stdout and
// stderr text, display artifacts in arrival order, the return value
// when the fragment produced one, and the terminal outcome.
//
// Chunk boundaries are preserved for real-time consumers through
// Callbacks, which forward each stream event synchronously as it
// arrives; the folded Result carries the concatenation.
package aggregate
