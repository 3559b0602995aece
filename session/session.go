// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/replwire/replwire/lib/aggregate"
	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/codec"
	"github.com/replwire/replwire/lib/execution"
	"github.com/replwire/replwire/lib/wire"
	"github.com/replwire/replwire/transport"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("session: closed")

// LifecycleState is the session's connection health, distinct from the
// per-execution state machine. There is no connecting state: Connect
// blocks while the channels are being established and either returns a
// ready session or an error, so callers never observe a session that
// is only partially connected.
type LifecycleState string

const (
	// StateReady means the session is connected with no execution in
	// flight.
	StateReady LifecycleState = "ready"

	// StateBusy means an execution is in flight.
	StateBusy LifecycleState = "busy"

	// StateClosed means Close was called. Terminal.
	StateClosed LifecycleState = "closed"

	// StateErrored means a transport fault ended the session. Terminal.
	StateErrored LifecycleState = "errored"
)

// Options configures Connect. Dialer and Address are required.
type Options struct {
	// Dialer opens the channel connections.
	Dialer transport.Dialer

	// Address is the kernel endpoint in the dialer's address format.
	Address string

	// SessionID identifies the session. Generated when empty.
	SessionID string

	// HeartbeatInterval is the probe spacing. Zero means the transport
	// default.
	HeartbeatInterval time.Duration

	// Clock drives timestamps and the heartbeat prober. Nil means the
	// real clock.
	Clock clock.Clock

	// Logger receives diagnostics. Nil disables them.
	Logger *slog.Logger
}

// Session is a live connection to one kernel session.
type Session struct {
	id       string
	channels *transport.Channels
	router   *Router
	clk      clock.Clock
	logger   *slog.Logger

	// submitMu serializes Submit calls, which is what makes execution
	// ordering FIFO.
	submitMu sync.Mutex

	// replies carries decoded execute_reply messages from the request
	// channel's single reader goroutine to the waiting Submit.
	replies chan wire.Message

	stateMu  sync.Mutex
	state    LifecycleState
	fatalErr error
	current  string

	// fatal is closed when the session moves to errored, unblocking
	// any Submit waiting on a reply or on events.
	fatal    chan struct{}
	failOnce sync.Once

	cancelBackground context.CancelFunc
	background       sync.WaitGroup
	closeOnce        sync.Once
	closed           chan struct{}
}

// Connect dials the three channels of a session and starts its
// background loops: the broadcast listener, the request-channel reply
// reader, and the heartbeat prober.
func Connect(ctx context.Context, options Options) (*Session, error) {
	if options.Dialer == nil {
		return nil, fmt.Errorf("session: no dialer configured")
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := options.SessionID
	if id == "" {
		id = wire.NewID()
	}
	logger = logger.With("session_id", id)

	channels, err := transport.Connect(ctx, options.Dialer, options.Address, id)
	if err != nil {
		return nil, fmt.Errorf("session: connecting to %s: %w", options.Address, err)
	}

	backgroundCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:               id,
		channels:         channels,
		router:           NewRouter(logger),
		clk:              clk,
		logger:           logger,
		replies:          make(chan wire.Message, 1),
		state:            StateReady,
		fatal:            make(chan struct{}),
		cancelBackground: cancel,
		closed:           make(chan struct{}),
	}

	s.background.Add(3)
	go s.broadcastLoop()
	go s.replyLoop()
	go s.heartbeatLoop(backgroundCtx, options.HeartbeatInterval)
	return s, nil
}

// ID returns the session identifier carried on every message.
func (s *Session) ID() string { return s.id }

// State returns the session's lifecycle state.
func (s *Session) State() LifecycleState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Submit executes one code fragment and blocks until the execution
// reaches a terminal state, then returns its aggregated result.
// Callbacks fire while output streams in.
//
// A failure of the fragment itself is reported inside the result, not
// as an error; the error return is reserved for session-level faults
// (closed or errored session, broken transport, cancelled ctx).
// Concurrent calls queue in FIFO order.
func (s *Session) Submit(ctx context.Context, code string, callbacks aggregate.Callbacks) (aggregate.Result, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if err := s.usable(); err != nil {
		return aggregate.Result{}, err
	}

	request := wire.NewExecuteRequest(s.id, code, s.clk.Now())
	exec := execution.New(request.CorrelationID, code, s.clk, callbacks.Observer())
	s.router.Register(exec)
	defer s.router.Unregister(request.CorrelationID)
	s.setCurrent(request.CorrelationID)
	defer s.setCurrent("")

	// Drop any reply a previously abandoned submission left behind.
	select {
	case stale := <-s.replies:
		s.logger.Debug("discarding stale reply", "correlation_id", stale.CorrelationID)
	default:
	}

	if err := transport.SendMessage(s.channels.Request, request); err != nil {
		s.fail(fmt.Errorf("session: sending request: %w", err))
		return aggregate.Result{}, s.fatalError()
	}

awaitReply:
	for {
		select {
		case reply := <-s.replies:
			if reply.CorrelationID != request.CorrelationID {
				s.logger.Debug("ignoring reply for a different request",
					"correlation_id", reply.CorrelationID)
				continue
			}
			if reply.ExecuteReply.Status == wire.ReplyRejected {
				exec.Reject(reply.ExecuteReply.Reason)
			}
			break awaitReply
		case <-exec.Done():
			// Cancelled from another goroutine before the reply came.
			break awaitReply
		case <-ctx.Done():
			s.interrupt(request.CorrelationID)
			exec.Abort()
			return aggregate.FromExecution(exec, s.logger), ctx.Err()
		case <-s.fatal:
			exec.Abort()
			return aggregate.FromExecution(exec, s.logger), s.fatalError()
		case <-s.closed:
			exec.Abort()
			return aggregate.FromExecution(exec, s.logger), ErrClosed
		}
	}

	select {
	case <-exec.Done():
		return aggregate.FromExecution(exec, s.logger), nil
	case <-ctx.Done():
		s.interrupt(request.CorrelationID)
		exec.Abort()
		return aggregate.FromExecution(exec, s.logger), ctx.Err()
	case <-s.fatal:
		exec.Abort()
		return aggregate.FromExecution(exec, s.logger), s.fatalError()
	case <-s.closed:
		exec.Abort()
		return aggregate.FromExecution(exec, s.logger), ErrClosed
	}
}

// Cancel aborts the in-flight execution, if any. The kernel is asked
// to stop via a best-effort interrupt, but the abort is local and
// immediate: the blocked Submit returns without waiting for the
// interpreter to actually halt.
func (s *Session) Cancel() {
	s.stateMu.Lock()
	correlationID := s.current
	s.stateMu.Unlock()
	if correlationID == "" {
		return
	}
	s.interrupt(correlationID)
	if exec := s.router.Lookup(correlationID); exec != nil {
		exec.Abort()
	}
}

// Close tears down the channels and stops the background loops.
// Idempotent; safe to call concurrently with Submit, which then
// returns ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		if s.state != StateErrored {
			s.state = StateClosed
		}
		s.stateMu.Unlock()
		close(s.closed)
		s.cancelBackground()
		s.channels.Close()
		s.router.AbortAll()
		s.background.Wait()
	})
	return nil
}

// usable returns the error a Submit should fail with, or nil.
func (s *Session) usable() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateErrored:
		return s.fatalErr
	}
	return nil
}

func (s *Session) fatalError() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.fatalErr
}

func (s *Session) setCurrent(correlationID string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.current = correlationID
	if s.state == StateReady || s.state == StateBusy {
		if correlationID == "" {
			s.state = StateReady
		} else {
			s.state = StateBusy
		}
	}
}

// interrupt sends a best-effort interrupt for the given execution.
// Send failures are logged, not surfaced: the caller is already
// abandoning the execution locally.
func (s *Session) interrupt(correlationID string) {
	message := wire.NewInterrupt(s.id, correlationID, s.clk.Now())
	if err := transport.SendMessage(s.channels.Request, message); err != nil {
		s.logger.Debug("interrupt send failed", "error", err)
	}
}

// fail moves the session to errored, records the first fatal error,
// aborts everything in flight, and tears down the channels.
func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.stateMu.Lock()
		if s.state != StateClosed {
			s.state = StateErrored
		}
		s.fatalErr = err
		s.stateMu.Unlock()
		s.logger.Error("session failed", "error", err)
		close(s.fatal)
		s.router.AbortAll()
		s.channels.Close()
	})
}

// isShutdown reports whether a background read failure is expected
// because the session is being closed or has already failed.
func (s *Session) isShutdown() bool {
	select {
	case <-s.closed:
		return true
	case <-s.fatal:
		return true
	default:
		return false
	}
}

// broadcastLoop is the single reader of the broadcast channel. Every
// decodable event is routed; malformed frames' contents are dropped
// per message, but a broken connection is fatal to the session.
func (s *Session) broadcastLoop() {
	defer s.background.Done()
	for {
		frame, err := s.channels.Broadcast.ReadFrame()
		if err != nil {
			if !s.isShutdown() {
				s.fail(fmt.Errorf("session: broadcast channel: %w", err))
			}
			return
		}
		var event wire.Message
		if err := codec.UnmarshalAs("broadcast event", frame, &event); err != nil {
			s.logger.Debug("dropping undecodable broadcast frame", "error", err)
			continue
		}
		if err := event.Validate(); err != nil {
			s.logger.Debug("dropping invalid broadcast message", "error", err)
			continue
		}
		if !event.IsEvent() {
			s.logger.Debug("dropping non-event broadcast message", "type", event.Type)
			continue
		}
		if event.Type == wire.TypeStatus && event.CorrelationID == "" {
			// Session-wide kernel status. Nothing to route; the
			// lifecycle state tracks our own submissions.
			s.logger.Debug("kernel status", "state", event.Status.State)
			continue
		}
		s.router.Dispatch(event)
	}
}

// replyLoop is the single reader of the request channel. It forwards
// execute_reply messages to the waiting Submit and drops everything
// else.
func (s *Session) replyLoop() {
	defer s.background.Done()
	for {
		frame, err := s.channels.Request.ReadFrame()
		if err != nil {
			if !s.isShutdown() {
				s.fail(fmt.Errorf("session: request channel: %w", err))
			}
			return
		}
		var message wire.Message
		if err := codec.UnmarshalAs("execute reply", frame, &message); err != nil {
			s.logger.Debug("dropping undecodable reply frame", "error", err)
			continue
		}
		if message.Type != wire.TypeExecuteReply || message.ExecuteReply == nil {
			s.logger.Debug("dropping unexpected request-channel message", "type", message.Type)
			continue
		}
		select {
		case s.replies <- message:
		default:
			s.logger.Debug("dropping reply with no submit waiting",
				"correlation_id", message.CorrelationID)
		}
	}
}

// heartbeatLoop probes the kernel until shutdown. Three consecutive
// unanswered probes fail the session.
func (s *Session) heartbeatLoop(ctx context.Context, interval time.Duration) {
	defer s.background.Done()
	prober := transport.NewHeartbeat(s.channels.Heartbeat, s.id, interval, s.clk, s.logger)
	if err := prober.Run(ctx); err != nil && !s.isShutdown() {
		s.fail(fmt.Errorf("session: heartbeat: %w", err))
	}
}
