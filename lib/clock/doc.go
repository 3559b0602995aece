// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and advance time explicitly.
//
// The heartbeat prober, execution timestamps, and submission timeouts
// all take a Clock instead of calling the time package directly, so
// tests exercise heartbeat loss and cancellation deadlines without
// real sleeps.
package clock
