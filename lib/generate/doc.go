// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package generate is the HTTP client for an external generation
// backend. The backend owns everything about models, prompting, and
// tokens; this package only carries the conversation over the wire.
//
// The protocol is a single POST endpoint. A blocking call returns one
// JSON document with the full response text. A streaming call returns
// Server-Sent Events: "delta" events carry text increments, an
// optional "error" event reports mid-stream failure, and "done" ends
// the stream.
package generate
