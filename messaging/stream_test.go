// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mindroom-ai/mindroom/lib/ref"
)

// syncScript returns one scripted result per Sync call. A nil
// response means that call fails with the given error.
type syncStep struct {
	response *SyncResponse
	err      error
}

// fakeSession implements Session with a scripted Sync and panics on
// everything the stream should never touch.
type fakeSession struct {
	Session

	steps   []syncStep
	calls   []SyncOptions
	idleRst int
}

func (f *fakeSession) Sync(_ context.Context, options SyncOptions) (*SyncResponse, error) {
	f.calls = append(f.calls, options)
	if len(f.steps) == 0 {
		return nil, errors.New("sync script exhausted")
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.response, step.err
}

func (f *fakeSession) CloseIdleConnections() {
	f.idleRst++
}

func timelineResponse(nextBatch string, room ref.RoomID, eventIDs ...string) *SyncResponse {
	events := make([]Event, len(eventIDs))
	for i, id := range eventIDs {
		events[i] = Event{
			EventID: ref.MustParseEventID(id),
			Type:    "m.room.message",
			Content: map[string]any{"msgtype": "m.text", "body": "hi"},
		}
	}
	return &SyncResponse{
		NextBatch: nextBatch,
		Rooms: RoomsSection{
			Join: map[ref.RoomID]JoinedRoom{
				room: {Timeline: TimelineSection{Events: events}},
			},
		},
	}
}

func TestStreamDeliversBufferedEvents(t *testing.T) {
	room := ref.MustParseRoomID("!lobby:example.com")
	session := &fakeSession{steps: []syncStep{
		{response: &SyncResponse{NextBatch: "s1"}},
		{response: timelineResponse("s2", room, "$a", "$b", "$c")},
	}}

	stream, err := OpenStream(t.Context(), session, StreamFilter{}, nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	for _, want := range []string{"$a", "$b", "$c"} {
		event, err := stream.Next(t.Context())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if event.EventID.String() != want {
			t.Errorf("event ID = %q, want %q", event.EventID, want)
		}
		if event.RoomID != room {
			t.Errorf("event %q room = %q, want %q", want, event.RoomID, room)
		}
	}

	// The anchor sync plus one long poll; buffered events needed no
	// further requests.
	if len(session.calls) != 2 {
		t.Errorf("sync calls = %d, want 2", len(session.calls))
	}
	if since := session.calls[1].Since; since != "s1" {
		t.Errorf("long poll since = %q, want %q", since, "s1")
	}
}

func TestStreamAnchorsAtNow(t *testing.T) {
	session := &fakeSession{steps: []syncStep{
		{response: &SyncResponse{NextBatch: "anchor"}},
	}}

	if _, err := OpenStream(t.Context(), session, StreamFilter{
		Rooms:         []ref.RoomID{ref.MustParseRoomID("!a:example.com")},
		TimelineTypes: []string{"m.room.message"},
	}, nil); err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	anchor := session.calls[0]
	if !anchor.SetTimeout || anchor.Timeout != 0 {
		t.Errorf("anchor sync timeout = %+v, want explicit zero", anchor)
	}
	if anchor.Since != "" {
		t.Errorf("anchor sync since = %q, want empty", anchor.Since)
	}
	if !strings.Contains(anchor.Filter, "!a:example.com") {
		t.Errorf("filter missing room scope: %s", anchor.Filter)
	}
	if !strings.Contains(anchor.Filter, "m.room.message") {
		t.Errorf("filter missing timeline types: %s", anchor.Filter)
	}
}

func TestStreamRetriesTransientErrors(t *testing.T) {
	room := ref.MustParseRoomID("!lobby:example.com")
	session := &fakeSession{steps: []syncStep{
		{response: &SyncResponse{NextBatch: "s1"}},
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{response: timelineResponse("s2", room, "$ok")},
	}}

	stream, err := OpenStream(t.Context(), session, StreamFilter{}, nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	event, err := stream.Next(t.Context())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.EventID.String() != "$ok" {
		t.Errorf("event ID = %q", event.EventID)
	}
	if session.idleRst != 2 {
		t.Errorf("idle connection resets = %d, want 2", session.idleRst)
	}
	// Retries use the short server timeout so the round trip itself
	// backs off; the successful attempt after an error does too.
	if got := session.calls[2].Timeout; got != retryTimeout {
		t.Errorf("retry timeout = %d, want %d", got, retryTimeout)
	}
}

func TestStreamGivesUpAfterMaxRetries(t *testing.T) {
	steps := []syncStep{{response: &SyncResponse{NextBatch: "s1"}}}
	for i := 0; i <= maxSyncRetries; i++ {
		steps = append(steps, syncStep{err: errors.New("down")})
	}
	session := &fakeSession{steps: steps}

	stream, err := OpenStream(t.Context(), session, StreamFilter{}, nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := stream.Next(t.Context()); err == nil {
		t.Fatal("Next succeeded after exhausting retries")
	}
}

func TestStreamSkipsEmptySyncs(t *testing.T) {
	room := ref.MustParseRoomID("!lobby:example.com")
	session := &fakeSession{steps: []syncStep{
		{response: &SyncResponse{NextBatch: "s1"}},
		{response: &SyncResponse{NextBatch: "s2"}},
		{response: timelineResponse("s3", room, "$late")},
	}}

	stream, err := OpenStream(t.Context(), session, StreamFilter{}, nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	event, err := stream.Next(t.Context())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.EventID.String() != "$late" {
		t.Errorf("event ID = %q", event.EventID)
	}
	if since := session.calls[2].Since; since != "s2" {
		t.Errorf("third sync since = %q, want %q", since, "s2")
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	session := &fakeSession{steps: []syncStep{
		{response: &SyncResponse{NextBatch: "s1"}},
	}}
	stream, err := OpenStream(t.Context(), session, StreamFilter{}, nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	// The fake returns an error once the script runs out; a cancelled
	// context must surface instead of counting as a retry.
	if _, err := stream.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next error = %v, want context.Canceled", err)
	}
}
