// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport maintains the logical channels between a client
// session and a kernel process.
//
// Every session holds three channel connections:
//
//   - request: execute_request out, execute_reply back. One
//     outstanding request at a time, strict reply-follows-request.
//   - broadcast: a continuous inbound stream of output events. Read
//     by exactly one listener so delivery order is preserved.
//   - heartbeat: periodic ping/pong liveness probing. Three
//     consecutive missed pongs mark the session dead.
//
// Connections are established by a Dialer and accepted by a Listener.
// Three implementations exist: Unix domain sockets (same machine, the
// default), TCP (kernel on another host), and WebSocket (kernels
// behind an HTTP reverse proxy). All three carry the same frame
// protocol: each frame is one CBOR value, and the first frame on every
// connection is a Hello declaring the channel kind and session id.
//
// The transport deals in raw frames. Encoding outbound messages is
// infallible here; decoding inbound frames belongs to the consumer,
// which drops malformed frames per message rather than failing the
// connection.
package transport
