// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"os"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*UnixListener)(nil)
	_ Dialer   = (*UnixDialer)(nil)
)

// UnixListener accepts channel connections on a Unix domain socket.
// This is the default transport for a kernel on the same machine.
type UnixListener struct {
	stream *streamListener
}

// NewUnixListener creates a listener on the given socket path. Any
// stale socket file at the path is removed first.
func NewUnixListener(socketPath string) (*UnixListener, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, &ConnectionError{Op: "listen", Address: socketPath, Err: err}
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, &ConnectionError{Op: "listen", Address: socketPath, Err: err}
	}
	return &UnixListener{stream: newStreamListener(listener)}, nil
}

// Serve accepts connections and dispatches each channel to handler.
// Blocks until ctx is cancelled or Close is called. The socket file is
// removed on return.
func (l *UnixListener) Serve(ctx context.Context, handler ChannelHandler) error {
	defer os.Remove(l.Address())
	return l.stream.serve(ctx, handler)
}

// Address returns the socket path.
func (l *UnixListener) Address() string { return l.stream.listener.Addr().String() }

// Close shuts down the listener.
func (l *UnixListener) Close() error { return l.stream.close() }

// UnixDialer opens channel connections over a Unix domain socket. The
// address is the socket path.
type UnixDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialChannel connects to the socket and sends the hello frame.
func (d *UnixDialer) DialChannel(ctx context.Context, address string, hello Hello) (FrameConn, error) {
	raw, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "unix", address)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Address: address, Err: err}
	}
	conn := newStreamConn(raw)
	if err := conn.WriteFrame(mustEncode(hello)); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "dial", Address: address, Err: err}
	}
	return conn, nil
}
