// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package routing is the message-routing decision engine: given an
// inbound room event it derives thread context, decides per agent
// whether to respond, and decides when several agents merge into one
// team response.
//
// The decision functions are pure: they perform no I/O and never
// fail. All network access happens in the Resolver, which fetches
// and edit-resolves thread history, and all writes happen afterwards
// in the dispatch layer once a decision is final. This keeps the
// edge-case surface (echo suppression, edit-vs-new semantics,
// invitation overrides, spoofed identities) testable without a
// homeserver.
package routing
