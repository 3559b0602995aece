// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"

	"github.com/replwire/replwire/lib/wire"
)

// ChannelKind identifies which logical channel a connection carries.
type ChannelKind string

const (
	// ChannelRequest is the request/reply channel.
	ChannelRequest ChannelKind = "request"

	// ChannelBroadcast is the continuous event stream.
	ChannelBroadcast ChannelKind = "broadcast"

	// ChannelHeartbeat is the ping/pong liveness channel.
	ChannelHeartbeat ChannelKind = "heartbeat"
)

// Hello is the first frame on every channel connection. It tells the
// kernel which logical channel the connection carries and which
// session it belongs to.
type Hello struct {
	// Channel is the logical channel kind.
	Channel ChannelKind `cbor:"channel"`

	// SessionID identifies the client session.
	SessionID string `cbor:"session_id"`
}

// Validate checks the hello names a known channel and a session.
func (h Hello) Validate() error {
	switch h.Channel {
	case ChannelRequest, ChannelBroadcast, ChannelHeartbeat:
	default:
		return fmt.Errorf("transport: unknown channel kind %q", h.Channel)
	}
	if h.SessionID == "" {
		return fmt.Errorf("transport: hello has no session id")
	}
	return nil
}

// FrameConn carries whole protocol frames over one channel
// connection. A frame is one encoded CBOR value. Implementations:
// stream connections (Unix, TCP) and WebSocket connections.
//
// WriteFrame is safe for concurrent use. ReadFrame must be called by
// exactly one goroutine — the broadcast channel's ordering guarantee
// depends on a single reader.
type FrameConn interface {
	// WriteFrame sends one frame. Returns *SendError when the
	// connection is closed or the write fails.
	WriteFrame(data []byte) error

	// ReadFrame blocks until the next frame arrives. Returns
	// *ConnectionError when the connection is closed or broken; the
	// sequence of frames is non-restartable after that.
	ReadFrame() ([]byte, error)

	// Close tears down the connection. Idempotent. Unblocks any
	// pending ReadFrame.
	Close() error
}

// Dialer opens channel connections to a kernel endpoint. The address
// format is implementation-specific: a socket path for Unix, host:port
// for TCP, a ws:// URL for WebSocket.
type Dialer interface {
	// DialChannel connects, sends the hello frame, and returns the
	// established connection. Fails with *ConnectionError on refusal
	// or timeout.
	DialChannel(ctx context.Context, address string, hello Hello) (FrameConn, error)
}

// ChannelHandler receives one accepted channel connection. The handler
// owns the connection and must close it. Called on its own goroutine
// per connection.
type ChannelHandler func(ctx context.Context, hello Hello, conn FrameConn)

// Listener accepts inbound channel connections from client sessions.
// The kernel server creates one and calls Serve with a handler that
// registers each channel with the session it belongs to.
type Listener interface {
	// Serve accepts connections, reads each connection's hello frame,
	// and dispatches to handler. Blocks until ctx is cancelled or
	// Close is called. Returns nil on clean shutdown.
	Serve(ctx context.Context, handler ChannelHandler) error

	// Address returns the address clients should dial. The format is
	// transport-specific and matches what the paired Dialer expects.
	Address() string

	// Close shuts down the listener.
	Close() error
}

// Channels bundles the three established connections of one session.
type Channels struct {
	// SessionID is the session all three connections belong to.
	SessionID string

	// Request is the request/reply connection.
	Request FrameConn

	// Broadcast is the event stream connection.
	Broadcast FrameConn

	// Heartbeat is the liveness connection.
	Heartbeat FrameConn
}

// Connect dials all three channels of a session against one kernel
// address. On any failure the already-established connections are
// closed and a *ConnectionError is returned.
func Connect(ctx context.Context, dialer Dialer, address, sessionID string) (*Channels, error) {
	channels := &Channels{SessionID: sessionID}

	kinds := []struct {
		kind   ChannelKind
		target *FrameConn
	}{
		{ChannelRequest, &channels.Request},
		{ChannelBroadcast, &channels.Broadcast},
		{ChannelHeartbeat, &channels.Heartbeat},
	}
	for _, entry := range kinds {
		conn, err := dialer.DialChannel(ctx, address, Hello{
			Channel:   entry.kind,
			SessionID: sessionID,
		})
		if err != nil {
			channels.Close()
			return nil, fmt.Errorf("transport: dialing %s channel: %w", entry.kind, err)
		}
		*entry.target = conn
	}
	return channels, nil
}

// Close tears down all established connections. Idempotent; nil
// connections (from a partial Connect) are skipped.
func (c *Channels) Close() error {
	var firstErr error
	for _, conn := range []FrameConn{c.Request, c.Broadcast, c.Heartbeat} {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// mustEncode marshals a value that cannot fail to encode (all wire
// and hello types marshal cleanly). Panics on the impossible case
// rather than threading an error through every send path.
func mustEncode(v any) []byte {
	data, err := encodeFrame(v)
	if err != nil {
		panic(fmt.Sprintf("transport: encoding %T: %v", v, err))
	}
	return data
}

// SendMessage encodes and writes one wire message on conn.
func SendMessage(conn FrameConn, message wire.Message) error {
	return conn.WriteFrame(mustEncode(message))
}
