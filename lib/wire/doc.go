// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the kernel protocol message model: the envelope
// shared by every message, the typed content variants, and the blob
// representation for binary display payloads.
//
// A message is one CBOR value. The envelope carries identity (message
// id, optional correlation id, session id), the message type, and a
// timestamp; exactly one content field matching the type is populated.
// The correlation id links every broadcast event back to the execute
// request that caused it — events without one are session-wide status
// and are never routed to a specific execution.
//
// Three channels carry messages:
//
//   - request: execute_request out, execute_reply back. One outstanding
//     request at a time, reply follows request.
//   - broadcast: stream, display_data, execute_result, error, and
//     status events, in the order the kernel produced them.
//   - heartbeat: ping out, pong back.
//
// Display payloads (images, HTML, structured data) travel as Blob
// values: raw bytes, optionally zstd-compressed when large enough to
// benefit, with a BLAKE3 digest available for diagnostics. Blobs are
// byte-exact: whatever the kernel emitted is what the caller gets.
package wire
