// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package execution

import (
	"sync"
	"time"

	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/wire"
)

// State is the execution's position in its lifecycle.
type State string

const (
	// StateSubmitted means the fragment was sent but no broadcast
	// event has arrived yet.
	StateSubmitted State = "submitted"

	// StateStreaming means at least one event has arrived and the
	// terminal event has not.
	StateStreaming State = "streaming"

	// StateTerminal means the outcome is decided. Absorbing.
	StateTerminal State = "terminal"
)

// Outcome is the terminal classification of an execution.
type Outcome string

const (
	// OutcomeOK means the fragment ran to completion.
	OutcomeOK Outcome = "ok"

	// OutcomeError means the fragment raised an exception. The session
	// stays healthy; the error is data, not a transport fault.
	OutcomeError Outcome = "error"

	// OutcomeAborted means the submission was cancelled or the session
	// closed while the fragment was in flight.
	OutcomeAborted Outcome = "aborted"
)

// Observer receives each delivered event synchronously, in arrival
// order, before Deliver returns. The session uses it to forward stream
// chunks to the caller's streaming callbacks in real time.
type Observer func(event wire.Message)

// Execution is the state machine for one submitted fragment. Events
// are delivered by the single router goroutine; accessors are safe
// from any goroutine.
type Execution struct {
	correlationID string
	code          string
	clk           clock.Clock
	observer      Observer

	mu        sync.Mutex
	state     State
	outcome   Outcome
	events    []wire.Message
	errorInfo *wire.ErrorContent
	started   time.Time
	ended     time.Time

	done chan struct{}
}

// New creates an execution in the submitted state. The observer may be
// nil. The start timestamp is taken from clk at creation.
func New(correlationID, code string, clk clock.Clock, observer Observer) *Execution {
	return &Execution{
		correlationID: correlationID,
		code:          code,
		clk:           clk,
		observer:      observer,
		state:         StateSubmitted,
		started:       clk.Now(),
		done:          make(chan struct{}),
	}
}

// CorrelationID returns the id linking this execution to its broadcast
// events.
func (e *Execution) CorrelationID() string { return e.correlationID }

// Code returns the submitted fragment text.
func (e *Execution) Code() string { return e.code }

// Done returns a channel closed when the execution reaches terminal.
func (e *Execution) Done() <-chan struct{} { return e.done }

// State returns the current lifecycle state.
func (e *Execution) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Outcome returns the terminal outcome, or "" before terminal.
func (e *Execution) Outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Events returns the delivered events in arrival order.
func (e *Execution) Events() []wire.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	events := make([]wire.Message, len(e.events))
	copy(events, e.events)
	return events
}

// ErrorInfo returns the error content when the outcome is error:
// either the kernel's error event or a synthesized one for a rejected
// request. Nil otherwise.
func (e *Execution) ErrorInfo() *wire.ErrorContent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorInfo
}

// StartedAt returns the submission timestamp.
func (e *Execution) StartedAt() time.Time { return e.started }

// EndedAt returns the terminal timestamp, or the zero time before
// terminal.
func (e *Execution) EndedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

// Deliver applies one broadcast event. Returns false when the
// execution is already terminal — the event is late and the caller
// drops it. Transitions:
//
//   - first event: submitted → streaming
//   - error event: → terminal, outcome error
//   - status idle: → terminal, outcome ok (unless an error event
//     already decided the outcome)
//   - anything else: accumulate, stay streaming
//
// The observer is invoked after the event is recorded, outside the
// lock, still strictly in arrival order because only the router
// goroutine calls Deliver.
func (e *Execution) Deliver(event wire.Message) bool {
	e.mu.Lock()
	if e.state == StateTerminal {
		e.mu.Unlock()
		return false
	}
	e.state = StateStreaming
	e.events = append(e.events, event)

	switch event.Type {
	case wire.TypeError:
		e.errorInfo = event.Error
		e.terminalLocked(OutcomeError)
	case wire.TypeStatus:
		if event.Status != nil && event.Status.State == wire.StateIdle {
			e.terminalLocked(OutcomeOK)
		}
	}
	observer := e.observer
	e.mu.Unlock()

	if observer != nil {
		observer(event)
	}
	return true
}

// Abort marks the execution aborted. No-op when already terminal, so
// a cancel racing the natural terminal event never produces a second
// outcome.
func (e *Execution) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateTerminal {
		return
	}
	e.terminalLocked(OutcomeAborted)
}

// Reject marks the execution failed before any broadcast traffic: the
// kernel's execute_reply refused the fragment. Synthesizes an error
// outcome so the caller sees a structured result rather than a
// transport fault.
func (e *Execution) Reject(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateTerminal {
		return
	}
	e.errorInfo = &wire.ErrorContent{
		Kind:    "RequestRejected",
		Message: reason,
	}
	e.terminalLocked(OutcomeError)
}

// terminalLocked records the outcome and signals completion. Caller
// holds e.mu. The outcome is written exactly once: every path here
// checks for terminal first.
func (e *Execution) terminalLocked(outcome Outcome) {
	e.state = StateTerminal
	e.outcome = outcome
	e.ended = e.clk.Now()
	close(e.done)
}
