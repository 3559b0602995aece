// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/replwire/replwire/lib/codec"
	"github.com/replwire/replwire/lib/testutil"
	"github.com/replwire/replwire/lib/wire"
)

// echoServer runs a listener whose request-channel handler echoes
// every frame back and records the hello of every accepted channel.
type echoServer struct {
	mu     sync.Mutex
	hellos []Hello
}

func (s *echoServer) handle(ctx context.Context, hello Hello, conn FrameConn) {
	s.mu.Lock()
	s.hellos = append(s.hellos, hello)
	s.mu.Unlock()

	defer conn.Close()
	if hello.Channel != ChannelRequest {
		// Hold broadcast and heartbeat connections open until the
		// client closes them.
		conn.ReadFrame()
		return
	}
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		if err := conn.WriteFrame(frame); err != nil {
			return
		}
	}
}

func (s *echoServer) acceptedKinds() map[ChannelKind]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(map[ChannelKind]string, len(s.hellos))
	for _, hello := range s.hellos {
		kinds[hello.Channel] = hello.SessionID
	}
	return kinds
}

// runConnectRoundtrip exercises Connect + frame echo over one
// listener/dialer pair.
func runConnectRoundtrip(t *testing.T, listener Listener, dialer Dialer) {
	t.Helper()

	server := &echoServer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- listener.Serve(ctx, server.handle) }()

	sessionID := testutil.UniqueID("session")
	channels, err := Connect(ctx, dialer, listener.Address(), sessionID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer channels.Close()

	request := wire.NewExecuteRequest(sessionID, "x = 1", time.Now())
	if err := SendMessage(channels.Request, request); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	frame, err := channels.Request.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	var echoed wire.Message
	if err := codec.Unmarshal(frame, &echoed); err != nil {
		t.Fatalf("Unmarshal echoed frame: %v", err)
	}
	if echoed.ID != request.ID || echoed.ExecuteRequest == nil || echoed.ExecuteRequest.Code != "x = 1" {
		t.Errorf("echoed message: got %+v, want %+v", echoed, request)
	}

	// All three channels presented the right hello.
	deadline := time.Now().Add(5 * time.Second)
	for {
		kinds := server.acceptedKinds()
		if len(kinds) == 3 {
			for _, kind := range []ChannelKind{ChannelRequest, ChannelBroadcast, ChannelHeartbeat} {
				if kinds[kind] != sessionID {
					t.Errorf("channel %s: session id %q, want %q", kind, kinds[kind], sessionID)
				}
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener accepted %d channel kinds, want 3", len(kinds))
		}
		time.Sleep(10 * time.Millisecond)
	}

	channels.Close()
	cancel()
	listener.Close()
	testutil.RequireReceive(t, serveDone, 5*time.Second, "listener shutdown")
}

func TestUnixConnectRoundtrip(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "kernel.sock")
	listener, err := NewUnixListener(socketPath)
	if err != nil {
		t.Fatalf("NewUnixListener: %v", err)
	}
	runConnectRoundtrip(t, listener, &UnixDialer{Timeout: 5 * time.Second})
}

func TestTCPConnectRoundtrip(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	runConnectRoundtrip(t, listener, &TCPDialer{Timeout: 5 * time.Second})
}

func TestWebSocketConnectRoundtrip(t *testing.T) {
	listener, err := NewWebSocketListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketListener: %v", err)
	}
	runConnectRoundtrip(t, listener, &WebSocketDialer{HandshakeTimeout: 5 * time.Second})
}

func TestConnectRefusedAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, &TCPDialer{Timeout: time.Second}, "127.0.0.1:1", "session-x")
	if err == nil {
		t.Fatal("Connect succeeded against a refused address")
	}
}

func TestChannelsCloseIdempotent(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	server := &echoServer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx, server.handle)

	channels, err := Connect(ctx, &TCPDialer{Timeout: 5 * time.Second}, listener.Address(), "session-y")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := channels.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := channels.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestHelloValidate(t *testing.T) {
	valid := Hello{Channel: ChannelRequest, SessionID: "s"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid hello rejected: %v", err)
	}
	if err := (Hello{Channel: "bogus", SessionID: "s"}).Validate(); err == nil {
		t.Error("unknown channel kind accepted")
	}
	if err := (Hello{Channel: ChannelRequest}).Validate(); err == nil {
		t.Error("empty session id accepted")
	}
}
