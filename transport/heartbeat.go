// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/codec"
	"github.com/replwire/replwire/lib/wire"
)

// MaxMissedHeartbeats is the number of consecutive unanswered probes
// after which the kernel is declared unresponsive and the session
// transitions to errored.
const MaxMissedHeartbeats = 3

// DefaultHeartbeatInterval is the probe interval used when the
// configuration does not override it.
const DefaultHeartbeatInterval = 5 * time.Second

// Heartbeat probes kernel liveness on the heartbeat channel. One
// prober runs per session, on its own goroutine, for the session's
// entire lifetime.
type Heartbeat struct {
	conn      FrameConn
	sessionID string
	interval  time.Duration
	clk       clock.Clock
	logger    *slog.Logger
}

// NewHeartbeat creates a prober for the given heartbeat connection.
// A non-positive interval falls back to DefaultHeartbeatInterval.
func NewHeartbeat(conn FrameConn, sessionID string, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Heartbeat{
		conn:      conn,
		sessionID: sessionID,
		interval:  interval,
		clk:       clk,
		logger:    logger,
	}
}

// Run probes until the kernel stops answering or ctx is cancelled.
// Returns nil on cancellation, *HeartbeatError after
// MaxMissedHeartbeats consecutive unanswered probes, or the transport
// fault that broke the channel.
//
// A probe counts as answered when a pong carrying the probe's message
// id arrives before the next tick. Stale pongs (answers to older
// probes) are ignored: after a long kernel stall, a burst of late
// pongs must not mask continued unresponsiveness.
func (h *Heartbeat) Run(ctx context.Context) error {
	pongs := make(chan string, MaxMissedHeartbeats+1)
	readFailed := make(chan error, 1)

	go h.readPongs(pongs, readFailed)

	ticker := h.clk.NewTicker(h.interval)
	defer ticker.Stop()

	var outstandingPing string
	missed := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readFailed:
			if ctx.Err() != nil {
				return nil
			}
			return err

		case pingID := <-pongs:
			if pingID != outstandingPing {
				h.logger.Debug("ignoring stale heartbeat pong",
					"session_id", h.sessionID,
					"ping_id", pingID,
				)
				continue
			}
			outstandingPing = ""
			missed = 0

		case <-ticker.C:
			// Judge pongs that raced the tick before counting a miss.
		drain:
			for {
				select {
				case pingID := <-pongs:
					if pingID == outstandingPing {
						outstandingPing = ""
						missed = 0
					}
				default:
					break drain
				}
			}
			if outstandingPing != "" {
				missed++
				h.logger.Warn("heartbeat missed",
					"session_id", h.sessionID,
					"consecutive", missed,
				)
				if missed >= MaxMissedHeartbeats {
					return &HeartbeatError{Missed: missed}
				}
			}
			ping := wire.NewPing(h.sessionID, h.clk.Now())
			if err := SendMessage(h.conn, ping); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			outstandingPing = ping.ID
		}
	}
}

// readPongs drains the heartbeat connection, forwarding the ping id
// each pong answers. Non-pong frames are dropped with a diagnostic.
func (h *Heartbeat) readPongs(pongs chan<- string, readFailed chan<- error) {
	for {
		frame, err := h.conn.ReadFrame()
		if err != nil {
			readFailed <- err
			return
		}
		var message wire.Message
		if err := codec.UnmarshalAs("heartbeat pong", frame, &message); err != nil {
			h.logger.Debug("dropping malformed heartbeat frame", "error", err)
			continue
		}
		if message.Type != wire.TypePong {
			h.logger.Debug("dropping unexpected heartbeat message", "type", message.Type)
			continue
		}
		select {
		case pongs <- message.CorrelationID:
		default:
			// The prober is behind; dropping is safe because only the
			// most recent ping id matters.
		}
	}
}
