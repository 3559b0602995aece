// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the content variant carried by a Message.
type MessageType string

const (
	// TypeExecuteRequest submits a code fragment. Request channel only.
	TypeExecuteRequest MessageType = "execute_request"

	// TypeExecuteReply acknowledges an execute_request. Request channel
	// only. The acknowledgement is advisory: the execution's result is
	// assembled from broadcast events, not from the reply.
	TypeExecuteReply MessageType = "execute_reply"

	// TypeStream is a chunk of interpreter stdout or stderr.
	TypeStream MessageType = "stream"

	// TypeDisplayData is a rich display artifact (MIME type → payload).
	TypeDisplayData MessageType = "display_data"

	// TypeExecuteResult is the fragment's return-value representation,
	// MIME-typed like display_data. At most one per execution.
	TypeExecuteResult MessageType = "execute_result"

	// TypeError reports an exception raised by the executed fragment.
	TypeError MessageType = "error"

	// TypeStatus is a busy/idle transition. With a correlation id it
	// belongs to one execution and idle marks that execution terminal;
	// without one it describes the kernel as a whole.
	TypeStatus MessageType = "status"

	// TypeInterrupt asks the kernel to stop the execution named by the
	// correlation id. Request channel only; fire-and-forget (no
	// reply). Delivery is best-effort — the client aborts locally
	// without waiting for the interpreter to actually halt.
	TypeInterrupt MessageType = "interrupt"

	// TypePing is a heartbeat probe. Heartbeat channel only.
	TypePing MessageType = "ping"

	// TypePong answers a ping. Heartbeat channel only.
	TypePong MessageType = "pong"
)

// Message is the wire envelope plus exactly one content variant
// selected by Type. All other variant fields are nil. Messages are
// immutable once decoded; their relative arrival order on the
// broadcast channel is semantically significant.
type Message struct {
	// ID uniquely identifies this message.
	ID string `cbor:"id"`

	// CorrelationID links a broadcast event to the execute_request that
	// caused it. Empty for session-wide status and heartbeat traffic.
	CorrelationID string `cbor:"correlation_id,omitempty"`

	// SessionID identifies the client session the message belongs to.
	SessionID string `cbor:"session_id,omitempty"`

	// Type selects the populated content variant.
	Type MessageType `cbor:"type"`

	// Timestamp is when the sender produced the message.
	Timestamp time.Time `cbor:"timestamp"`

	// ExecuteRequest is set for TypeExecuteRequest messages.
	ExecuteRequest *ExecuteRequest `cbor:"execute_request,omitempty"`

	// ExecuteReply is set for TypeExecuteReply messages.
	ExecuteReply *ExecuteReply `cbor:"execute_reply,omitempty"`

	// Stream is set for TypeStream messages.
	Stream *StreamContent `cbor:"stream,omitempty"`

	// DisplayData is set for TypeDisplayData messages.
	DisplayData *DisplayDataContent `cbor:"display_data,omitempty"`

	// ExecuteResult is set for TypeExecuteResult messages.
	ExecuteResult *ExecuteResultContent `cbor:"execute_result,omitempty"`

	// Error is set for TypeError messages.
	Error *ErrorContent `cbor:"error,omitempty"`

	// Status is set for TypeStatus messages.
	Status *StatusContent `cbor:"status,omitempty"`
}

// NewID returns a fresh random identifier for messages, correlation
// ids, and sessions.
func NewID() string {
	return uuid.NewString()
}

// Validate checks that the message carries exactly the content variant
// its Type announces. A mismatch is a protocol violation: the caller
// drops the message with a diagnostic rather than failing the session.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("wire: message has no id")
	}
	var want string
	switch m.Type {
	case TypeExecuteRequest:
		if m.ExecuteRequest == nil {
			want = "execute_request"
		}
	case TypeExecuteReply:
		if m.ExecuteReply == nil {
			want = "execute_reply"
		}
	case TypeStream:
		if m.Stream == nil {
			want = "stream"
		}
	case TypeDisplayData:
		if m.DisplayData == nil {
			want = "display_data"
		}
	case TypeExecuteResult:
		if m.ExecuteResult == nil {
			want = "execute_result"
		}
	case TypeError:
		if m.Error == nil {
			want = "error"
		}
	case TypeStatus:
		if m.Status == nil {
			want = "status"
		}
	case TypeInterrupt, TypePing, TypePong:
		// Interrupt and heartbeat messages carry no content.
	default:
		return fmt.Errorf("wire: unknown message type %q", m.Type)
	}
	if want != "" {
		return fmt.Errorf("wire: %s message is missing its %s content", m.Type, want)
	}
	return nil
}

// IsEvent reports whether the message is a broadcast output event, as
// opposed to request-channel or heartbeat traffic.
func (m *Message) IsEvent() bool {
	switch m.Type {
	case TypeStream, TypeDisplayData, TypeExecuteResult, TypeError, TypeStatus:
		return true
	}
	return false
}

// NewExecuteRequest builds an execute_request message. The message ID
// doubles as the correlation id: every broadcast event the kernel emits
// for this fragment carries it.
func NewExecuteRequest(sessionID, code string, now time.Time) Message {
	id := NewID()
	return Message{
		ID:             id,
		CorrelationID:  id,
		SessionID:      sessionID,
		Type:           TypeExecuteRequest,
		Timestamp:      now,
		ExecuteRequest: &ExecuteRequest{Code: code},
	}
}

// NewInterrupt builds an interrupt for the execution with the given
// correlation id.
func NewInterrupt(sessionID, correlationID string, now time.Time) Message {
	return Message{
		ID:            NewID(),
		CorrelationID: correlationID,
		SessionID:     sessionID,
		Type:          TypeInterrupt,
		Timestamp:     now,
	}
}

// NewPing builds a heartbeat probe.
func NewPing(sessionID string, now time.Time) Message {
	return Message{
		ID:        NewID(),
		SessionID: sessionID,
		Type:      TypePing,
		Timestamp: now,
	}
}

// NewPong builds the answer to a ping, echoing its message id in the
// correlation id field so the prober can match answers to probes.
func NewPong(ping Message, now time.Time) Message {
	return Message{
		ID:            NewID(),
		CorrelationID: ping.ID,
		SessionID:     ping.SessionID,
		Type:          TypePong,
		Timestamp:     now,
	}
}
