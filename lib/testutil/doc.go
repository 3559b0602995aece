// Copyright 2026 The Replwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for replwire packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. Unix domain sockets have a 108-byte path limit
// (sun_path in sockaddr_un), and CI systems often set TMPDIR to deeply
// nested paths that exceed it, making t.TempDir() unsuitable for
// socket files. The directory is removed when the test completes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
