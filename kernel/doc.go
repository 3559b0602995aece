// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernel implements the interpreter side of the wire protocol:
// a server that hosts one persistent Lua interpreter per session and
// speaks the three-channel protocol over any transport listener.
//
// Globals assigned by one fragment are visible to every later fragment
// in the same session — the interpreter state mutates continuously
// across submissions. Each session's request channel is served by a
// single loop that executes fragments one at a time, which is what
// guarantees the protocol's one-in-flight-execution invariant on the
// kernel side.
//
// The interpreter exposes a small builtin surface to executed code:
//
//	print(...)            write a line to the stdout stream
//	eprint(...)           write a line to the stderr stream
//	display(mime, bytes)  emit a rich display artifact
//	sleep(seconds)        pause execution
//
// A fragment that parses as an expression (or return statement) also
// produces an execute_result event carrying the value's text/plain
// rendering, REPL style.
//
// The package exists so the repository is runnable and testable end to
// end without an external interpreter process; cmd/replwire-kernel
// serves it as a standalone binary.
package kernel
