// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package dedup records which inbound events each agent has already
// answered, so an agent responds at most once per inbound event no
// matter how many times the event is re-observed (sync replay, edits,
// reconnects, process restart).
//
// The record maps (agent, inbound event ID) to the outbound event ID
// of the response. The outbound ID is what lets an edit to the inbound
// event become an edit of the existing reply instead of a second
// reply. Records are durable: the tracker is backed by SQLite through
// lib/sqlitepool and survives restarts.
//
// Marking responded is the caller's last step after a successful send.
// A failed send must not be marked, so the event stays answerable.
package dedup
