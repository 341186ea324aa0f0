// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/messaging"
)

// streamEditInterval is the minimum spacing between incremental edits
// of an in-progress streamed response. Edits are debounced: chunks
// arriving between ticks accumulate and the next tick flushes them as
// one edit.
const streamEditInterval = 2 * time.Second

// streamState is the debounce state machine for one streamed
// response. Suspension points are only the send and edit calls; chunk
// arrival and tick handling never block.
type streamState struct {
	accumulated string
	outbound    ref.EventID
	pending     bool
}

// streamResponse drives a chunk stream into one outbound message
// edited in place as text accumulates. The first chunk sends the
// initial message; subsequent chunks flush on the debounce tick and a
// final edit lands the complete text. Cancellation (via ctx) stops
// further edits; whatever was already sent stands, and the caller
// still records the response as made.
//
// Returns the outbound event ID. An error before the first successful
// send means nothing was posted.
func (c *Coordinator) streamResponse(ctx context.Context, task Task, chunks <-chan Chunk) (ref.EventID, error) {
	roomID := task.RoomID
	ticker := c.clk.NewTicker(streamEditInterval)
	defer ticker.Stop()

	var state streamState
	for {
		select {
		case <-ctx.Done():
			// Stop editing. The partial response already posted is
			// the final response.
			return state.outbound, nil

		case chunk, ok := <-chunks:
			if !ok {
				return state.outbound, c.finishStream(ctx, roomID, &state)
			}
			if chunk.Err != nil {
				if state.outbound.IsZero() {
					return ref.EventID{}, fmt.Errorf("dispatch: generation failed: %w", chunk.Err)
				}
				// Mid-stream failure: land what we have and annotate
				// nothing; the partial answer beats an error spam.
				c.logger.Warn("stream failed mid-response, keeping partial",
					"room_id", roomID,
					"outbound", state.outbound,
					"error", chunk.Err,
				)
				return state.outbound, c.finishStream(ctx, roomID, &state)
			}
			state.accumulated += chunk.Delta
			if state.outbound.IsZero() {
				outbound, err := c.send(ctx, task, state.accumulated)
				if err != nil {
					return ref.EventID{}, err
				}
				state.outbound = outbound
				state.pending = false
				continue
			}
			state.pending = true

		case <-ticker.C:
			if !state.pending || state.outbound.IsZero() {
				continue
			}
			if err := c.edit(ctx, roomID, state.outbound, state.accumulated); err != nil {
				// An intermediate edit failing is not fatal; the next
				// tick or the final edit retries with more text.
				c.logger.Debug("intermediate edit failed",
					"outbound", state.outbound,
					"error", err,
				)
				continue
			}
			state.pending = false
		}
	}
}

// finishStream lands the final accumulated text. Called on normal
// stream completion; a pending flush or an empty stream resolves
// here.
func (c *Coordinator) finishStream(ctx context.Context, roomID ref.RoomID, state *streamState) error {
	if state.outbound.IsZero() {
		return fmt.Errorf("dispatch: stream produced no text")
	}
	if !state.pending {
		return nil
	}
	if err := c.edit(ctx, roomID, state.outbound, state.accumulated); err != nil {
		return fmt.Errorf("dispatch: final edit: %w", err)
	}
	state.pending = false
	return nil
}

func (c *Coordinator) send(ctx context.Context, task Task, body string) (ref.EventID, error) {
	return c.session.SendMessage(ctx, task.RoomID, formatContent(outboundContent(task, body)))
}

func (c *Coordinator) edit(ctx context.Context, roomID ref.RoomID, target ref.EventID, body string) error {
	content := messaging.NewEdit(target, formatContent(messaging.NewText(body)))
	_, err := c.session.SendMessage(ctx, roomID, content)
	return err
}
