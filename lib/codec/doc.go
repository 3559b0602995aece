// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides replwire's standard CBOR encoding
// configuration for the kernel wire protocol.
//
// Every message that crosses a kernel channel — execute requests and
// replies on the request channel, output events on the broadcast
// channel, heartbeat pings on the echo channel — is one CBOR value
// encoded with the modes defined here. CBOR was chosen over a textual
// format because display artifacts carry raw binary payloads (image
// bytes, compressed blobs) that must round-trip exactly; CBOR byte
// strings carry them without base64 inflation or escaping hazards.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical message always produces identical bytes, which keeps
// frame digests and golden test fixtures stable.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (channel connections):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// CBOR values are self-delimiting, so connections need no additional
// framing: one Decode call consumes exactly one message.
//
// Decoding failures are reported as *DecodeError. A malformed frame is
// a per-message fault: the transport logs it and keeps reading — it is
// never fatal to the session.
package codec
