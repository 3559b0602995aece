// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ExecuteRequest asks the kernel to run one code fragment against its
// persistent interpreter state.
type ExecuteRequest struct {
	// Code is the fragment text, exactly as the caller submitted it.
	Code string `cbor:"code"`
}

// ReplyStatus is the kernel's admission decision for a request.
type ReplyStatus string

const (
	// ReplyAccepted means the kernel queued the fragment for execution.
	ReplyAccepted ReplyStatus = "accepted"

	// ReplyRejected means the kernel refused the fragment (e.g., a
	// request arrived while the kernel considers the session invalid).
	// A rejected execution terminates without broadcast traffic.
	ReplyRejected ReplyStatus = "rejected"
)

// ExecuteReply is the request-channel acknowledgement for an
// execute_request.
type ExecuteReply struct {
	// Status is the admission decision.
	Status ReplyStatus `cbor:"status"`

	// Reason explains a rejection. Empty when accepted.
	Reason string `cbor:"reason,omitempty"`
}

// StreamName identifies which interpreter stream a chunk came from.
type StreamName string

const (
	// Stdout is the interpreter's standard output stream.
	Stdout StreamName = "stdout"

	// Stderr is the interpreter's standard error stream.
	Stderr StreamName = "stderr"
)

// StreamContent is one chunk of interpreter output. Chunk boundaries
// are preserved end to end so streaming callbacks observe output as
// the interpreter produced it, not as one final concatenation.
type StreamContent struct {
	// Name is the stream the chunk belongs to.
	Name StreamName `cbor:"name"`

	// Text is the chunk. May be any length including empty, and may
	// split multi-byte characters only at rune boundaries.
	Text string `cbor:"text"`
}

// DisplayDataContent is a rich display artifact: the same logical
// value rendered under one or more MIME types (e.g., "image/png" bytes
// alongside a "text/plain" fallback).
type DisplayDataContent struct {
	// Data maps MIME type to payload.
	Data map[string]Blob `cbor:"data"`

	// Transient marks artifacts the kernel may later replace (e.g.,
	// progressive plot updates). Transient artifacts still appear in
	// the aggregated result in arrival order.
	Transient bool `cbor:"transient,omitempty"`
}

// ExecuteResultContent is the fragment's return-value representation,
// MIME-typed like display data. Emitted at most once per execution,
// and only when the fragment produced a value.
type ExecuteResultContent struct {
	// Data maps MIME type to payload. Always includes "text/plain".
	Data map[string]Blob `cbor:"data"`
}

// ErrorContent reports an exception raised while executing the
// fragment. This is an execution outcome, not a client fault: the
// session remains healthy and usable after receiving one.
type ErrorContent struct {
	// Kind is the exception type (e.g., "RuntimeError").
	Kind string `cbor:"kind"`

	// Message is the exception message.
	Message string `cbor:"message"`

	// Traceback is the ordered traceback, innermost frame last.
	Traceback []string `cbor:"traceback,omitempty"`
}

// KernelState is the interpreter's activity state.
type KernelState string

const (
	// StateBusy means the kernel is executing a fragment.
	StateBusy KernelState = "busy"

	// StateIdle means the kernel is ready for the next fragment. An
	// idle status carrying a correlation id is always the last event
	// for that execution.
	StateIdle KernelState = "idle"
)

// StatusContent is a kernel busy/idle transition.
type StatusContent struct {
	// State is the new activity state.
	State KernelState `cbor:"state"`
}
