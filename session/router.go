// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"log/slog"
	"sync"

	"github.com/replwire/replwire/lib/execution"
	"github.com/replwire/replwire/lib/wire"
)

// Router delivers broadcast events to the in-flight execution they
// correlate with. Events that match nothing are dropped with a
// diagnostic; correlation ids are never reused, so a non-match means
// the event is late or stray, not misrouted.
type Router struct {
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*execution.Execution
}

// NewRouter creates an empty router. A nil logger disables diagnostics.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		logger:   logger,
		inflight: make(map[string]*execution.Execution),
	}
}

// Register makes the execution eligible to receive events carrying its
// correlation id.
func (r *Router) Register(exec *execution.Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[exec.CorrelationID()] = exec
}

// Unregister removes the execution with the given correlation id.
// Events for it arriving afterwards are dropped.
func (r *Router) Unregister(correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, correlationID)
}

// Lookup returns the registered execution for a correlation id, or nil.
func (r *Router) Lookup(correlationID string) *execution.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight[correlationID]
}

// Dispatch routes one broadcast event. Returns true if an execution
// accepted it. Unroutable and late events are dropped, never held:
// ordering within an execution is the transport's job, and an event
// with no live execution has no one left to inform.
func (r *Router) Dispatch(event wire.Message) bool {
	if event.CorrelationID == "" {
		r.logger.Debug("dropping event with no correlation id", "type", event.Type)
		return false
	}
	r.mu.Lock()
	exec := r.inflight[event.CorrelationID]
	r.mu.Unlock()
	if exec == nil {
		r.logger.Debug("dropping event for unknown correlation id",
			"type", event.Type, "correlation_id", event.CorrelationID)
		return false
	}
	if !exec.Deliver(event) {
		r.logger.Debug("dropping event for terminal execution",
			"type", event.Type, "correlation_id", event.CorrelationID)
		return false
	}
	return true
}

// AbortAll aborts every registered execution. Called when the session
// fails so no Submit is left waiting on events that will never come.
func (r *Router) AbortAll() {
	r.mu.Lock()
	executions := make([]*execution.Execution, 0, len(r.inflight))
	for _, exec := range r.inflight {
		executions = append(executions, exec)
	}
	r.mu.Unlock()
	for _, exec := range executions {
		exec.Abort()
	}
}
