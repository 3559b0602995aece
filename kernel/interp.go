// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"strings"
	"time"

	lua "github.com/Shopify/go-lua"

	"github.com/replwire/replwire/lib/clock"
	"github.com/replwire/replwire/lib/wire"
)

// Sink receives the side effects of an executing fragment as they
// happen. The interpreter calls it synchronously from builtins, so
// implementations should hand data off quickly.
type Sink interface {
	// Stream delivers a chunk of stdout or stderr text.
	Stream(name wire.StreamName, text string)

	// Display delivers a rich artifact keyed by MIME type.
	Display(data map[string][]byte)
}

// Interp is a persistent Lua interpreter. Globals survive across
// Execute calls, which is what makes a session stateful. An Interp is
// not safe for concurrent use; the kernel session serializes access.
type Interp struct {
	state *lua.State
	clk   clock.Clock

	// sink is the target for the execution currently in progress.
	// Set for the duration of Execute only.
	sink Sink
}

// NewInterp creates an interpreter with the standard Lua libraries
// plus the kernel builtins registered.
func NewInterp(clk clock.Clock) *Interp {
	state := lua.NewState()
	lua.OpenLibraries(state)
	interp := &Interp{state: state, clk: clk}
	interp.registerBuiltins()
	return interp
}

// Execute runs one code fragment against the persistent interpreter
// state, routing print/display side effects to the sink. If the
// fragment evaluates to a value, the returned map holds its rendering
// keyed by MIME type. A non-nil ErrorContent reports a syntax or
// runtime failure; interpreter state up to the failure point is kept.
func (interp *Interp) Execute(code string, sink Sink) (map[string][]byte, *wire.ErrorContent) {
	interp.sink = sink
	defer func() { interp.sink = nil }()

	state := interp.state
	base := state.Top()

	// Try the fragment as an expression first so that bare "x + 1"
	// produces a result event, the way a REPL echoes values. If that
	// fails to parse, fall back to compiling it as a statement block.
	loadErr := lua.LoadString(state, "return "+code)
	if loadErr != nil {
		state.SetTop(base)
		loadErr = lua.LoadString(state, code)
	}
	if loadErr != nil {
		message := loadErr.Error()
		state.SetTop(base)
		return nil, &wire.ErrorContent{
			Kind:      "SyntaxError",
			Message:   message,
			Traceback: tracebackLines(message),
		}
	}

	if err := state.ProtectedCall(0, lua.MultipleReturns, 0); err != nil {
		message := err.Error()
		if top := state.Top(); top > base {
			if text, ok := state.ToString(top); ok && text != "" {
				message = text
			}
		}
		state.SetTop(base)
		return nil, &wire.ErrorContent{
			Kind:      "RuntimeError",
			Message:   message,
			Traceback: tracebackLines(message),
		}
	}

	returned := state.Top() - base
	if returned == 0 {
		return nil, nil
	}
	if returned == 1 && state.IsNil(base+1) {
		state.SetTop(base)
		return nil, nil
	}
	values := make([]string, 0, returned)
	for index := base + 1; index <= state.Top(); index++ {
		values = append(values, renderValue(state, index))
	}
	state.SetTop(base)
	return map[string][]byte{
		"text/plain": []byte(strings.Join(values, "\t")),
	}, nil
}

// Close releases the interpreter. The underlying state is garbage
// collected; this exists so callers have a lifecycle hook.
func (interp *Interp) Close() {
	interp.state = nil
}

func (interp *Interp) registerBuiltins() {
	interp.state.Register("print", func(state *lua.State) int {
		interp.emitLine(state, wire.Stdout)
		return 0
	})
	interp.state.Register("eprint", func(state *lua.State) int {
		interp.emitLine(state, wire.Stderr)
		return 0
	})
	interp.state.Register("display", func(state *lua.State) int {
		mime := lua.CheckString(state, 1)
		payload := lua.CheckString(state, 2)
		if interp.sink != nil {
			interp.sink.Display(map[string][]byte{mime: []byte(payload)})
		}
		return 0
	})
	interp.state.Register("sleep", func(state *lua.State) int {
		seconds := lua.CheckNumber(state, 1)
		interp.clk.Sleep(time.Duration(seconds * float64(time.Second)))
		return 0
	})
}

// emitLine renders every argument of the current call, joins them with
// tabs, and streams the result as a single newline-terminated line.
func (interp *Interp) emitLine(state *lua.State, name wire.StreamName) {
	parts := make([]string, 0, state.Top())
	for index := 1; index <= state.Top(); index++ {
		parts = append(parts, renderValue(state, index))
	}
	if interp.sink != nil {
		interp.sink.Stream(name, strings.Join(parts, "\t")+"\n")
	}
}

// renderValue produces the text/plain form of a stack value. Strings
// and numbers render as themselves; other types render by type name,
// matching what the stock Lua REPL shows for non-scalar values.
func renderValue(state *lua.State, index int) string {
	switch state.TypeOf(index) {
	case lua.TypeNil:
		return "nil"
	case lua.TypeBoolean:
		if state.ToBoolean(index) {
			return "true"
		}
		return "false"
	default:
		if text, ok := state.ToString(index); ok {
			return text
		}
		return typeName(state.TypeOf(index))
	}
}

func typeName(kind lua.Type) string {
	switch kind {
	case lua.TypeTable:
		return "table"
	case lua.TypeFunction:
		return "function"
	case lua.TypeUserData:
		return "userdata"
	case lua.TypeThread:
		return "thread"
	case lua.TypeLightUserData:
		return "userdata"
	default:
		return "value"
	}
}

// tracebackLines splits a Lua error message into ordered traceback
// lines. Lua errors embed the chunk name and line number in the first
// line; multi-line messages keep their original order.
func tracebackLines(message string) []string {
	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []string{message}
	}
	return lines
}
