// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Compile-time interface checks.
var (
	_ Listener = (*WebSocketListener)(nil)
	_ Dialer   = (*WebSocketDialer)(nil)
)

// WebSocketListener accepts channel connections over WebSocket. Use it
// when the kernel sits behind an HTTP reverse proxy or load balancer
// that cannot pass raw TCP. Each protocol frame travels as one binary
// WebSocket message.
type WebSocketListener struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	activeConnections sync.WaitGroup
}

// NewWebSocketListener creates a WebSocket listener on the specified
// TCP address. Use ":0" for a random available port.
func NewWebSocketListener(address string) (*WebSocketListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, &ConnectionError{Op: "listen", Address: address, Err: err}
	}
	return &WebSocketListener{listener: listener}, nil
}

// Serve upgrades inbound HTTP requests to WebSocket connections and
// dispatches each channel to handler. Blocks until ctx is cancelled or
// Close is called.
func (l *WebSocketListener) Serve(ctx context.Context, handler ChannelHandler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/channel", func(w http.ResponseWriter, r *http.Request) {
		socket, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		l.activeConnections.Add(1)
		go func() {
			defer l.activeConnections.Done()

			socket.SetReadDeadline(time.Now().Add(helloTimeout))
			conn := newWebSocketConn(socket)
			hello, err := readHello(conn)
			if err != nil {
				slog.Debug("websocket dropping connection without valid hello", "error", err)
				conn.Close()
				return
			}
			socket.SetReadDeadline(time.Time{})

			handler(ctx, hello, conn)
		}()
	})

	l.server = &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		l.server.Close()
	}()

	err := l.server.Serve(l.listener)
	l.activeConnections.Wait()
	if err == http.ErrServerClosed {
		return nil
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Address returns the dialable WebSocket URL for the /channel
// endpoint.
func (l *WebSocketListener) Address() string {
	return "ws://" + l.listener.Addr().String() + "/channel"
}

// Close shuts down the listener.
func (l *WebSocketListener) Close() error {
	if l.server != nil {
		return l.server.Close()
	}
	return l.listener.Close()
}

// WebSocketDialer opens channel connections over WebSocket. The
// address is a ws:// or wss:// URL as returned by
// WebSocketListener.Address.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the WebSocket handshake. Zero uses the
	// gorilla default.
	HandshakeTimeout time.Duration
}

// DialChannel connects to the URL and sends the hello frame.
func (d *WebSocketDialer) DialChannel(ctx context.Context, address string, hello Hello) (FrameConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	socket, response, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Address: address, Err: err}
	}
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	conn := newWebSocketConn(socket)
	if err := conn.WriteFrame(mustEncode(hello)); err != nil {
		conn.Close()
		return nil, &ConnectionError{Op: "dial", Address: address, Err: err}
	}
	return conn, nil
}

// webSocketConn is a FrameConn over a WebSocket connection. One binary
// WebSocket message carries one protocol frame, so the WebSocket's own
// framing replaces CBOR stream delimiting.
type webSocketConn struct {
	socket *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWebSocketConn(socket *websocket.Conn) *webSocketConn {
	return &webSocketConn{socket: socket}
}

func (c *webSocketConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.socket.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return &SendError{Err: err}
	}
	return nil
}

func (c *webSocketConn) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := c.socket.ReadMessage()
		if err != nil {
			return nil, &ConnectionError{Op: "read", Err: err}
		}
		// Text and control messages are not protocol frames; skip
		// anything that is not binary.
		if messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *webSocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.socket.Close()
	})
	return c.closeErr
}
