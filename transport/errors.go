// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "fmt"

// ConnectionError reports a transport-level connection fault: refusal,
// timeout, or an established connection breaking. Fatal to the
// session — the caller must reconnect. Execution-level errors never
// surface as ConnectionError.
type ConnectionError struct {
	// Op names the failing operation ("dial", "read").
	Op string

	// Address is the endpoint involved, when known.
	Address string

	// Err is the underlying fault.
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a failed write on an established channel, usually
// because the connection is closed. Fatal to the session.
type SendError struct {
	// Err is the underlying write fault.
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("transport: send: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// HeartbeatError reports liveness loss: the configured number of
// consecutive heartbeat probes went unanswered. Fatal to the session.
type HeartbeatError struct {
	// Missed is the number of consecutive unanswered probes.
	Missed int
}

func (e *HeartbeatError) Error() string {
	return fmt.Sprintf("transport: kernel unresponsive: %d consecutive heartbeats missed", e.Missed)
}
