// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/codec"
	"github.com/replwire/replwire/lib/wire"
	"github.com/replwire/replwire/transport"
)

// broadcastAttachTimeout bounds how long an execution waits for the
// session's broadcast connection before emitting events into the void.
// The three channels of a session are dialed together, so in practice
// the broadcast channel attaches within milliseconds of the first
// request.
const broadcastAttachTimeout = 10 * time.Second

// Server hosts kernel sessions and serves the wire protocol over a
// transport listener. Each session gets its own persistent interpreter
// the first time any of its channels connects.
type Server struct {
	clk    clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates a kernel server. A nil logger disables diagnostics.
func NewServer(clk clock.Clock, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		clk:      clk,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Serve accepts channel connections on the listener until ctx is
// cancelled or the listener is closed.
func (s *Server) Serve(ctx context.Context, listener transport.Listener) error {
	return listener.Serve(ctx, s.handleChannel)
}

func (s *Server) handleChannel(ctx context.Context, hello transport.Hello, conn transport.FrameConn) {
	sess := s.session(hello.SessionID)
	switch hello.Channel {
	case transport.ChannelRequest:
		sess.serveRequests(ctx, conn)
	case transport.ChannelBroadcast:
		sess.serveBroadcast(conn)
	case transport.ChannelHeartbeat:
		sess.serveHeartbeat(conn)
	default:
		s.logger.Warn("closing connection for unknown channel",
			"channel", hello.Channel, "session_id", hello.SessionID)
		conn.Close()
	}
}

// session returns the state for a session id, creating it (and its
// interpreter) on first use.
func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing
	}
	created := &session{
		id:             id,
		interp:         NewInterp(s.clk),
		clk:            s.clk,
		logger:         s.logger.With("session_id", id),
		broadcastReady: make(chan struct{}),
	}
	s.sessions[id] = created
	return created
}

// session is the kernel-side state of one client session: a persistent
// interpreter plus whichever channel connections are currently attached.
type session struct {
	id     string
	interp *Interp
	clk    clock.Clock
	logger *slog.Logger

	mu             sync.Mutex
	broadcast      transport.FrameConn
	broadcastReady chan struct{}
	readyOnce      sync.Once

	// runMu serializes executions. The Lua state is not safe for
	// concurrent use, and a client may open more than one request
	// connection for the same session.
	runMu sync.Mutex
}

// serveHeartbeat answers every ping with a pong until the connection
// drops. Anything other than a ping is dropped with a diagnostic.
func (sess *session) serveHeartbeat(conn transport.FrameConn) {
	defer conn.Close()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		var message wire.Message
		if err := codec.UnmarshalAs("heartbeat ping", frame, &message); err != nil {
			sess.logger.Debug("dropping undecodable heartbeat frame", "error", err)
			continue
		}
		if message.Type != wire.TypePing {
			sess.logger.Debug("dropping non-ping heartbeat message", "type", message.Type)
			continue
		}
		if err := transport.SendMessage(conn, wire.NewPong(message, sess.clk.Now())); err != nil {
			return
		}
	}
}

// serveBroadcast attaches the connection as the session's event sink.
// The client never sends on this channel, so the read loop exists only
// to notice the disconnect.
func (sess *session) serveBroadcast(conn transport.FrameConn) {
	sess.mu.Lock()
	if sess.broadcast != nil {
		sess.broadcast.Close()
	}
	sess.broadcast = conn
	sess.mu.Unlock()
	sess.readyOnce.Do(func() { close(sess.broadcastReady) })

	for {
		if _, err := conn.ReadFrame(); err != nil {
			break
		}
	}
	sess.mu.Lock()
	if sess.broadcast == conn {
		sess.broadcast = nil
	}
	sess.mu.Unlock()
	conn.Close()
}

// serveRequests runs the session's execution loop: decode a request,
// acknowledge it, execute it to completion, repeat. Executing inline
// in the read loop is what serializes executions per session.
func (sess *session) serveRequests(ctx context.Context, conn transport.FrameConn) {
	defer conn.Close()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}
		var message wire.Message
		if err := codec.UnmarshalAs("execute request", frame, &message); err != nil {
			sess.logger.Debug("dropping undecodable request frame", "error", err)
			continue
		}
		if err := message.Validate(); err != nil {
			sess.logger.Debug("dropping invalid request message", "error", err)
			continue
		}
		switch message.Type {
		case wire.TypeExecuteRequest:
			reply := sess.reply(message, wire.ReplyAccepted, "")
			if err := transport.SendMessage(conn, reply); err != nil {
				return
			}
			sess.execute(ctx, message)
		case wire.TypeInterrupt:
			// Executions run inline in this loop, so an interrupt can
			// only arrive between fragments; there is nothing to stop.
			sess.logger.Debug("ignoring interrupt with no execution in progress",
				"correlation_id", message.CorrelationID)
		default:
			sess.logger.Debug("dropping unexpected request-channel message", "type", message.Type)
		}
	}
}

func (sess *session) reply(request wire.Message, status wire.ReplyStatus, reason string) wire.Message {
	return wire.Message{
		ID:            wire.NewID(),
		CorrelationID: request.CorrelationID,
		SessionID:     sess.id,
		Type:          wire.TypeExecuteReply,
		Timestamp:     sess.clk.Now(),
		ExecuteReply:  &wire.ExecuteReply{Status: status, Reason: reason},
	}
}

// execute runs one fragment and emits its broadcast events. The idle
// status is emitted last in every case, including failures.
func (sess *session) execute(ctx context.Context, request wire.Message) {
	sess.runMu.Lock()
	defer sess.runMu.Unlock()
	sess.waitBroadcast(ctx)

	correlationID := request.CorrelationID
	sess.emit(sess.event(correlationID, wire.TypeStatus, func(m *wire.Message) {
		m.Status = &wire.StatusContent{State: wire.StateBusy}
	}))

	result, execErr := sess.interp.Execute(request.ExecuteRequest.Code, &broadcastSink{
		sess:          sess,
		correlationID: correlationID,
	})

	if result != nil {
		data := make(map[string]wire.Blob, len(result))
		for mime, payload := range result {
			data[mime] = wire.NewBlob(payload)
		}
		sess.emit(sess.event(correlationID, wire.TypeExecuteResult, func(m *wire.Message) {
			m.ExecuteResult = &wire.ExecuteResultContent{Data: data}
		}))
	}
	if execErr != nil {
		sess.emit(sess.event(correlationID, wire.TypeError, func(m *wire.Message) {
			m.Error = execErr
		}))
	}
	sess.emit(sess.event(correlationID, wire.TypeStatus, func(m *wire.Message) {
		m.Status = &wire.StatusContent{State: wire.StateIdle}
	}))
}

// waitBroadcast blocks until the session's broadcast channel has
// attached, so the events of the very first execution are not lost to
// the dial race between the request and broadcast connections.
func (sess *session) waitBroadcast(ctx context.Context) {
	select {
	case <-sess.broadcastReady:
	case <-ctx.Done():
	case <-sess.clk.After(broadcastAttachTimeout):
		sess.logger.Warn("executing with no broadcast channel attached")
	}
}

func (sess *session) event(correlationID string, kind wire.MessageType, fill func(*wire.Message)) wire.Message {
	message := wire.Message{
		ID:            wire.NewID(),
		CorrelationID: correlationID,
		SessionID:     sess.id,
		Type:          kind,
		Timestamp:     sess.clk.Now(),
	}
	fill(&message)
	return message
}

// emit writes one event to the broadcast connection. Events produced
// while no broadcast channel is attached are dropped with a diagnostic;
// the client that would have received them is gone.
func (sess *session) emit(message wire.Message) {
	sess.mu.Lock()
	conn := sess.broadcast
	sess.mu.Unlock()
	if conn == nil {
		sess.logger.Debug("dropping event with no broadcast channel",
			"type", message.Type, "correlation_id", message.CorrelationID)
		return
	}
	if err := transport.SendMessage(conn, message); err != nil {
		sess.logger.Debug("dropping event after broadcast write failure",
			"type", message.Type, "error", err)
	}
}

// broadcastSink forwards interpreter side effects as broadcast events
// for one execution.
type broadcastSink struct {
	sess          *session
	correlationID string
}

var _ Sink = (*broadcastSink)(nil)

func (b *broadcastSink) Stream(name wire.StreamName, text string) {
	b.sess.emit(b.sess.event(b.correlationID, wire.TypeStream, func(m *wire.Message) {
		m.Stream = &wire.StreamContent{Name: name, Text: text}
	}))
}

func (b *broadcastSink) Display(data map[string][]byte) {
	blobs := make(map[string]wire.Blob, len(data))
	for mime, payload := range data {
		blobs[mime] = wire.NewBlob(payload)
	}
	b.sess.emit(b.sess.event(b.correlationID, wire.TypeDisplayData, func(m *wire.Message) {
		m.DisplayData = &wire.DisplayDataContent{Data: blobs}
	}))
}
