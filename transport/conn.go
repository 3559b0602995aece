// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net"
	"sync"

	"github.com/replwire/replwire/lib/codec"
)

// encodeFrame marshals one value to its CBOR frame bytes.
func encodeFrame(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// streamConn is a FrameConn over a byte-stream connection (Unix or
// TCP). CBOR values are self-delimiting, so the stream needs no
// additional framing: one Decode consumes exactly one frame.
type streamConn struct {
	raw     net.Conn
	decoder *codec.Decoder

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// newStreamConn wraps an established byte-stream connection.
func newStreamConn(raw net.Conn) *streamConn {
	return &streamConn{
		raw:     raw,
		decoder: codec.NewDecoder(raw),
	}
}

func (c *streamConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.raw.Write(data); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	var raw codec.RawMessage
	if err := c.decoder.Decode(&raw); err != nil {
		// Covers both a closed connection and broken CBOR framing.
		// With broken framing there is no way to find the next frame
		// boundary in the stream, so unlike a malformed message
		// (recoverable, handled by the consumer) the connection is
		// done either way.
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	return []byte(raw), nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// readHello reads and validates the hello frame that opens every
// channel connection.
func readHello(conn FrameConn) (Hello, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return Hello{}, err
	}
	var hello Hello
	if err := codec.UnmarshalAs("channel hello", frame, &hello); err != nil {
		return Hello{}, err
	}
	if err := hello.Validate(); err != nil {
		return Hello{}, err
	}
	return hello, nil
}
