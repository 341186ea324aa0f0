// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the standard SQLite connection pool for
// mindroom's local state: the response dedup tracker and the thread
// history snapshot cache.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode, NORMAL synchronous for process-crash durability
// without fsync-per-commit overhead, and a busy timeout so concurrent
// agent writers wait for the lock instead of failing with SQLITE_BUSY.
// NORMAL is acceptable here because the data is reconstructible: the
// source of truth for every response is the Matrix room itself, and
// the worst outcome of a lost record is one duplicate reply after a
// power failure.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are NOT safe for concurrent use; each goroutine
// holds its own for the duration of its work. There is no query
// builder and no ORM: callers write SQL against sqlitex.Execute.
package sqlitepool
