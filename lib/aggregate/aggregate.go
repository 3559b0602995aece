// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"log/slog"
	"strings"
	"time"

	"github.com/replwire/replwire/lib/execution"
	"github.com/replwire/replwire/lib/wire"
)

// Artifact is one display artifact: the same value rendered under one
// or more MIME types, with payloads already decompressed.
type Artifact struct {
	// Data maps MIME type to payload bytes.
	Data map[string][]byte

	// Transient marks artifacts the kernel flagged as replaceable.
	Transient bool
}

// ExecutionError is the structured error of a fragment that raised.
type ExecutionError struct {
	// Kind is the exception type.
	Kind string

	// Message is the exception message.
	Message string

	// Traceback is the ordered traceback, innermost frame last.
	Traceback []string
}

// Result is the aggregated outcome of one execution.
type Result struct {
	// Stdout is the ordered concatenation of all stdout chunks.
	Stdout string

	// Stderr is the ordered concatenation of all stderr chunks.
	Stderr string

	// Display lists display artifacts in arrival order.
	Display []Artifact

	// ReturnValue is the fragment's MIME-typed return value, nil when
	// the fragment produced none.
	ReturnValue map[string][]byte

	// Error is set when Outcome is error.
	Error *ExecutionError

	// Outcome is the terminal classification: ok, error, or aborted.
	Outcome execution.Outcome

	// Started and Ended bound the execution's wall-clock span.
	Started time.Time
	Ended   time.Time
}

// Callbacks are the caller's optional real-time stream consumers.
// Each function is invoked synchronously per chunk, in arrival order,
// before Submit returns.
type Callbacks struct {
	// OnStdout receives each stdout chunk.
	OnStdout func(text string)

	// OnStderr receives each stderr chunk.
	OnStderr func(text string)
}

// Observer adapts the callbacks to an execution observer. Returns nil
// when no callback is set, so the execution skips the dispatch
// entirely.
func (c Callbacks) Observer() execution.Observer {
	if c.OnStdout == nil && c.OnStderr == nil {
		return nil
	}
	return func(event wire.Message) {
		if event.Type != wire.TypeStream || event.Stream == nil {
			return
		}
		switch event.Stream.Name {
		case wire.Stdout:
			if c.OnStdout != nil {
				c.OnStdout(event.Stream.Text)
			}
		case wire.Stderr:
			if c.OnStderr != nil {
				c.OnStderr(event.Stream.Text)
			}
		}
	}
}

// FromExecution folds a terminal execution into its Result. Corrupt
// display payloads (blobs that fail to decompress) are dropped with a
// diagnostic, matching the per-message recovery policy for malformed
// frames; they never fail the execution.
func FromExecution(exec *execution.Execution, logger *slog.Logger) Result {
	result := fold(exec.Events(), logger)
	result.Outcome = exec.Outcome()
	result.Started = exec.StartedAt()
	result.Ended = exec.EndedAt()
	if info := exec.ErrorInfo(); info != nil {
		result.Error = &ExecutionError{
			Kind:      info.Kind,
			Message:   info.Message,
			Traceback: append([]string(nil), info.Traceback...),
		}
	}
	return result
}

// fold walks the events in arrival order, accumulating stream text
// and display artifacts.
func fold(events []wire.Message, logger *slog.Logger) Result {
	var result Result
	var stdout, stderr strings.Builder

	for _, event := range events {
		switch event.Type {
		case wire.TypeStream:
			if event.Stream == nil {
				continue
			}
			switch event.Stream.Name {
			case wire.Stdout:
				stdout.WriteString(event.Stream.Text)
			case wire.Stderr:
				stderr.WriteString(event.Stream.Text)
			}

		case wire.TypeDisplayData:
			if event.DisplayData == nil {
				continue
			}
			data := openPayloads(event.DisplayData.Data, event.CorrelationID, logger)
			if len(data) == 0 {
				continue
			}
			result.Display = append(result.Display, Artifact{
				Data:      data,
				Transient: event.DisplayData.Transient,
			})

		case wire.TypeExecuteResult:
			if event.ExecuteResult == nil {
				continue
			}
			result.ReturnValue = openPayloads(event.ExecuteResult.Data, event.CorrelationID, logger)
		}
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return result
}

// openPayloads decompresses a MIME map's blobs, dropping entries that
// fail to open.
func openPayloads(blobs map[string]wire.Blob, correlationID string, logger *slog.Logger) map[string][]byte {
	if len(blobs) == 0 {
		return nil
	}
	data := make(map[string][]byte, len(blobs))
	for mime, blob := range blobs {
		payload, err := blob.Open()
		if err != nil {
			logger.Warn("dropping corrupt display payload",
				"correlation_id", correlationID,
				"mime", mime,
				"payload_digest", blob.RawDigest(),
				"error", err,
			)
			continue
		}
		data[mime] = payload
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
