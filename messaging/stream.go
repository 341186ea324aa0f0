// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mindroom-ai/mindroom/lib/ref"
)

// StreamFilter restricts what a Stream receives from /sync.
type StreamFilter struct {
	// Rooms scopes the stream to these rooms. Empty means all
	// joined rooms.
	Rooms []ref.RoomID

	// TimelineTypes restricts timeline events to these event types.
	// Empty means all types.
	TimelineTypes []string

	// TimelineLimit caps timeline events per /sync response. Zero
	// uses the server default.
	TimelineLimit int
}

// buildInlineFilter constructs the inline JSON filter for /sync.
// Presence and account data are always suppressed; agents only
// consume room timelines.
func buildInlineFilter(filter StreamFilter) string {
	roomFilter := map[string]any{
		"state": map[string]any{"types": []string{"m.room.member"}},
	}
	if len(filter.Rooms) > 0 {
		rooms := make([]string, len(filter.Rooms))
		for i, room := range filter.Rooms {
			rooms[i] = room.String()
		}
		roomFilter["rooms"] = rooms
	}
	timeline := map[string]any{}
	if len(filter.TimelineTypes) > 0 {
		timeline["types"] = filter.TimelineTypes
	}
	if filter.TimelineLimit > 0 {
		timeline["limit"] = filter.TimelineLimit
	}
	if len(timeline) > 0 {
		roomFilter["timeline"] = timeline
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// maxSyncRetries is the number of consecutive /sync failures allowed
// before Next returns an error.
const maxSyncRetries = 5

// longPollTimeout is the server-side long-poll hold in milliseconds.
// 30 seconds matches the client-server spec recommendation.
const longPollTimeout = 30000

// retryTimeout is the server-side timeout used after a /sync error.
// Short so the retry round-trip itself provides backoff.
const retryTimeout = 1000

// Stream delivers timeline events from /sync long-polling, in server
// order, across the filtered room set. Events arriving before the
// stream was opened are never delivered: the opening sync anchors the
// position at "now", so an agent restart does not replay answered
// history (the dedup tracker covers the rest).
//
// Not safe for concurrent use.
type Stream struct {
	session   Session
	logger    *slog.Logger
	filter    string
	nextBatch string
	pending   []Event
}

// OpenStream captures the current /sync position and returns a
// Stream delivering events that arrive after it.
func OpenStream(ctx context.Context, session Session, filter StreamFilter, logger *slog.Logger) (*Stream, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	inlineFilter := buildInlineFilter(filter)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for stream: %w", err)
	}
	return &Stream{
		session:   session,
		logger:    logger,
		filter:    inlineFilter,
		nextBatch: response.NextBatch,
	}, nil
}

// Next blocks until the next timeline event arrives. Events from a
// multi-event /sync response are buffered and returned one at a time.
// Transient /sync errors retry up to maxSyncRetries with a short
// server timeout; idle connections are reset on error so the next
// attempt opens a fresh socket.
//
// The returned event carries its room ID even though /sync nests
// events under the room key.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	if len(s.pending) > 0 {
		event := s.pending[0]
		s.pending = s.pending[1:]
		return event, nil
	}

	var syncRetries int
	for {
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := s.session.Sync(ctx, SyncOptions{
			Since:      s.nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     s.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Event{}, fmt.Errorf("context cancelled waiting for events: %w", ctx.Err())
			}
			syncRetries++
			if closer, ok := s.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			if syncRetries > maxSyncRetries {
				return Event{}, fmt.Errorf("sync failed %d consecutive times: %w", syncRetries, err)
			}
			s.logger.Debug("stream sync error, retrying",
				"attempt", syncRetries,
				"max_attempts", maxSyncRetries,
				"error", err,
			)
			continue
		}
		syncRetries = 0
		s.nextBatch = response.NextBatch

		for roomID, joined := range response.Rooms.Join {
			for _, event := range joined.Timeline.Events {
				if event.RoomID.IsZero() {
					event.RoomID = roomID
				}
				s.pending = append(s.pending, event)
			}
		}
		if len(s.pending) == 0 {
			continue
		}

		event := s.pending[0]
		s.pending = s.pending[1:]
		return event, nil
	}
}
