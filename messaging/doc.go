// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for mindroom's
// agents.
//
// [Client] is an unauthenticated Matrix client that handles login and
// token-based session creation, returning authenticated [Session]
// values. Client holds the homeserver URL and HTTP transport, shared
// across all sessions: one process holds one Client and one
// DirectSession per agent account.
//
// Sessions are lightweight (a pointer to the parent Client plus an
// access token in mmap-backed secret.Buffer memory). The token is
// locked against swap and excluded from core dumps; callers must call
// Session.Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, ...) and HTTP status.
// Request URLs are built by string concatenation rather than url.URL
// to avoid double-encoding of path segments.
//
// Threads and edits are first-class: [NewThreadReply] carries the
// m.thread relation, [NewEdit] the m.replace relation with
// m.new_content, [NewReaction] the m.annotation relation.
// Session.ThreadMessages fetches thread contents via the relations
// API; Session.RoomMessages paginates room history for the resolver's
// fallback path.
package messaging
