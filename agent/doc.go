// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs one event loop per agent identity. Each Runner
// pumps its Matrix sync stream sequentially: parse the event, check
// the sender, resolve thread context, decide whether to respond, and
// hand accepted work to the dispatch coordinator. Streaming responses
// are the one concurrent path, so a later stop command or reaction
// can cancel a generation already in flight.
//
// Runners share nothing but process-wide tables: the invitation
// table, the dedup tracker, and the history cache. Every other piece
// of state is owned by exactly one runner.
package agent
