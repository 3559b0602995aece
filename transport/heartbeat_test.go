// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/codec"
	"github.com/replwire/replwire/lib/testutil"
	"github.com/replwire/replwire/lib/wire"
)

// scriptedConn is an in-memory FrameConn for driving the heartbeat
// prober without a network.
type scriptedConn struct {
	inbound  chan []byte
	outbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *scriptedConn) WriteFrame(data []byte) error {
	select {
	case c.outbound <- data:
		return nil
	case <-c.closed:
		return &SendError{Err: io.ErrClosedPipe}
	}
}

func (c *scriptedConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.closed:
		return nil, &ConnectionError{Op: "read", Err: io.EOF}
	}
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func decodePing(t *testing.T, frame []byte) wire.Message {
	t.Helper()
	var message wire.Message
	if err := codec.Unmarshal(frame, &message); err != nil {
		t.Fatalf("decoding prober frame: %v", err)
	}
	if message.Type != wire.TypePing {
		t.Fatalf("prober sent %s, want ping", message.Type)
	}
	return message
}

func TestHeartbeatAnsweredProbesKeepRunning(t *testing.T) {
	conn := newScriptedConn()
	defer conn.Close()
	prober := NewHeartbeat(conn, "session-1", 20*time.Millisecond, clock.Real(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- prober.Run(ctx) }()

	// Answer every probe immediately, like a healthy kernel.
	answered := make(chan struct{}, 64)
	go func() {
		for {
			select {
			case frame := <-conn.outbound:
				var message wire.Message
				if err := codec.Unmarshal(frame, &message); err != nil || message.Type != wire.TypePing {
					continue
				}
				pong, err := codec.Marshal(wire.NewPong(message, time.Now()))
				if err != nil {
					continue
				}
				select {
				case conn.inbound <- pong:
					answered <- struct{}{}
				case <-conn.closed:
					return
				}
			case <-conn.closed:
				return
			}
		}
	}()

	// Let many probe cycles complete.
	for i := 0; i < 8; i++ {
		testutil.RequireReceive(t, answered, 5*time.Second, "probe cycle %d", i)
	}

	select {
	case err := <-result:
		t.Fatalf("prober exited during answered probing: %v", err)
	default:
	}

	cancel()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "prober shutdown"); err != nil {
		t.Errorf("Run after cancel: %v", err)
	}
}

func TestHeartbeatThreeMissesErrors(t *testing.T) {
	conn := newScriptedConn()
	defer conn.Close()
	fakeClock := clock.Fake(time.Unix(0, 0))
	prober := NewHeartbeat(conn, "session-1", time.Second, fakeClock, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- prober.Run(ctx) }()

	fakeClock.WaitForTimers(1)

	// Tick 1 sends the first ping; it is never answered. Ticks 2 and 3
	// each count a miss and re-probe. Tick 4 counts the third miss.
	for i := 0; i < 3; i++ {
		fakeClock.Advance(time.Second)
		frame := testutil.RequireReceive(t, conn.outbound, 5*time.Second, "ping %d", i)
		decodePing(t, frame)
	}
	fakeClock.Advance(time.Second)

	err := testutil.RequireReceive(t, result, 5*time.Second, "prober exit")
	var heartbeatErr *HeartbeatError
	if !errors.As(err, &heartbeatErr) {
		t.Fatalf("Run: got %v, want *HeartbeatError", err)
	}
	if heartbeatErr.Missed != MaxMissedHeartbeats {
		t.Errorf("missed count: got %d, want %d", heartbeatErr.Missed, MaxMissedHeartbeats)
	}
}

func TestHeartbeatStalePongDoesNotReset(t *testing.T) {
	conn := newScriptedConn()
	defer conn.Close()
	fakeClock := clock.Fake(time.Unix(0, 0))
	prober := NewHeartbeat(conn, "session-1", time.Second, fakeClock, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- prober.Run(ctx) }()

	fakeClock.WaitForTimers(1)

	// First probe goes unanswered. Feed the prober a pong for a ping
	// id it never sent: it must not clear the outstanding probe.
	fakeClock.Advance(time.Second)
	decodePing(t, testutil.RequireReceive(t, conn.outbound, 5*time.Second, "first ping"))

	stale, err := codec.Marshal(wire.NewPong(wire.Message{ID: "never-sent"}, fakeClock.Now()))
	if err != nil {
		t.Fatalf("encoding stale pong: %v", err)
	}
	testutil.RequireSend(t, conn.inbound, stale, 5*time.Second, "stale pong")

	for i := 0; i < 2; i++ {
		fakeClock.Advance(time.Second)
		decodePing(t, testutil.RequireReceive(t, conn.outbound, 5*time.Second, "re-probe %d", i))
	}
	fakeClock.Advance(time.Second)

	runErr := testutil.RequireReceive(t, result, 5*time.Second, "prober exit")
	var heartbeatErr *HeartbeatError
	if !errors.As(runErr, &heartbeatErr) {
		t.Fatalf("Run: got %v, want *HeartbeatError", runErr)
	}
}

func TestHeartbeatBrokenChannelSurfacesError(t *testing.T) {
	conn := newScriptedConn()
	fakeClock := clock.Fake(time.Unix(0, 0))
	prober := NewHeartbeat(conn, "session-1", time.Second, fakeClock, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- prober.Run(ctx) }()

	fakeClock.WaitForTimers(1)
	conn.Close()

	err := testutil.RequireReceive(t, result, 5*time.Second, "prober exit")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Run: got %v, want *ConnectionError", err)
	}
}
