// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package execution tracks one submitted code fragment from submission
// through streaming output to its terminal outcome.
//
// The state machine is submitted → streaming → terminal. Terminal is
// absorbing: once an execution has its outcome, further events for its
// correlation id are refused and the router drops them with a
// diagnostic. Exactly one of the three outcomes — ok, error, aborted —
// is ever produced.
//
// Completion is signaled by a one-shot channel (Done), separating the
// always-running broadcast listener that delivers events from the
// transient caller blocked in Submit.
package execution
