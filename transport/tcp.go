// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts channel connections over TCP. Use it when the
// kernel runs on a different host. The transport carries no
// authentication or encryption — put it behind a trusted network or
// terminate TLS in front of it.
type TCPListener struct {
	stream *streamListener
}

// NewTCPListener creates a TCP listener on the specified address
// (e.g., ":7411" or "192.168.1.10:7411"). Use ":0" for a random
// available port.
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, &ConnectionError{Op: "listen", Address: address, Err: err}
	}
	return &TCPListener{stream: newStreamListener(listener)}, nil
}

// Serve accepts connections and dispatches each channel to handler.
// Blocks until ctx is cancelled or Close is called.
func (l *TCPListener) Serve(ctx context.Context, handler ChannelHandler) error {
	return l.stream.serve(ctx, handler)
}

// Address returns the TCP address in "host:port" format.
func (l *TCPListener) Address() string { return l.stream.listener.Addr().String() }

// Close shuts down the listener.
func (l *TCPListener) Close() error { return l.stream.close() }

// TCPDialer opens channel connections over TCP. The address is
// "host:port".
type TCPDialer struct {
	// Timeout is the maximum time to wait for the TCP connection to be
	// established. Zero means only the context deadline applies.
	Timeout time.Duration
}

// DialChannel connects to the address and sends the hello frame.
func (d *TCPDialer) DialChannel(ctx context.Context, address string, hello Hello) (FrameConn, error) {
	raw, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
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

// streamListener is the shared accept loop for byte-stream listeners
// (Unix and TCP). It reads each connection's hello frame and hands the
// connection to the channel handler on its own goroutine.
type streamListener struct {
	listener net.Listener

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

func newStreamListener(listener net.Listener) *streamListener {
	return &streamListener{listener: listener}
}

// helloTimeout is how long the listener waits for a freshly accepted
// connection to send its hello frame. A well-behaved client sends it
// immediately after connecting.
const helloTimeout = 30 * time.Second

func (l *streamListener) serve(ctx context.Context, handler ChannelHandler) error {
	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		raw, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("transport accept failed", "error", err)
			continue
		}

		l.activeConnections.Add(1)
		go func() {
			defer l.activeConnections.Done()

			raw.SetReadDeadline(time.Now().Add(helloTimeout))
			conn := newStreamConn(raw)
			hello, err := readHello(conn)
			if err != nil {
				slog.Debug("transport dropping connection without valid hello", "error", err)
				conn.Close()
				return
			}
			raw.SetReadDeadline(time.Time{})

			handler(ctx, hello, conn)
		}()
	}

	l.activeConnections.Wait()
	return nil
}

func (l *streamListener) close() error {
	return l.listener.Close()
}
