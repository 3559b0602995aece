// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the client-side controller for one kernel
// session. It owns the three channel connections, routes broadcast
// events to the execution they belong to, runs the heartbeat prober,
// and exposes a synchronous Submit call that turns a code fragment
// into an aggregated result.
//
// One execution is in flight at a time: concurrent Submit calls queue
// in FIFO order. A transport fault (broken channel, missed heartbeats)
// moves the session to the errored state, aborts the in-flight
// execution, and surfaces as a Go error from Submit; a failure of the
// submitted code is an execution outcome carried inside the returned
// result, and leaves the session healthy.
package session
