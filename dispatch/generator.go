// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"

	"github.com/mindroom-ai/mindroom/routing"
)

// Request is one generation call. SessionID keys the model layer's
// conversational memory; History is the edit-resolved thread history
// the prompt builds on.
type Request struct {
	Agent     string
	SessionID string
	Prompt    string
	History   []routing.HistoryMessage

	// Partials holds earlier team members' outputs in coordinate
	// mode, in member order. Empty for single-agent requests.
	Partials []Partial
}

// Partial is one team member's contribution to an in-progress
// coordinated response.
type Partial struct {
	Agent string
	Text  string
}

// Chunk is one streamed increment. Err is non-nil only on the final
// chunk of a failed stream.
type Chunk struct {
	Delta string
	Err   error
}

// Generator is the model invocation boundary. Implementations turn a
// request into text; everything about prompting, models, and tokens
// lives behind it.
type Generator interface {
	// Generate blocks until the full response text is available.
	Generate(ctx context.Context, req Request) (string, error)

	// Stream returns incremental deltas. The channel closes when the
	// response is complete; a final Chunk with Err set reports
	// mid-stream failure.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
