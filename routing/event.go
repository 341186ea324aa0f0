// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/messaging"
)

// Meta carries the fields common to every inbound event kind.
type Meta struct {
	EventID   ref.EventID
	RoomID    ref.RoomID
	Sender    ref.UserID
	Timestamp int64 // origin_server_ts, milliseconds

	// OriginalSender is the relayed original-sender field, set when
	// an internal identity forwards a message on behalf of a human.
	// Empty for directly sent events.
	OriginalSender string

	// ThreadRoot is the m.thread relation root, zero for room-scope
	// events.
	ThreadRoot ref.EventID

	// ReplyTo is the m.in_reply_to reference, zero when absent. A
	// reply without a thread relation still sets this; the resolver
	// walks it one hop to find an implicit thread.
	ReplyTo ref.EventID
}

// Inbound is the closed set of event kinds the decision engine
// handles. Each variant carries only the fields relevant to it.
type Inbound interface {
	Meta() Meta
	inbound()
}

// TextEvent is a new (non-superseding) m.room.message.
type TextEvent struct {
	meta Meta

	Body    string
	MsgType string

	// StructuredMentions are the raw user IDs from the m.mentions
	// block, unvalidated. The mention parser filters foreign-domain
	// and unknown IDs.
	StructuredMentions []string
}

// EditEvent supersedes an earlier message. Target is the original
// event ID; routing decisions correlate to the original, never treat
// the edit as a new message.
type EditEvent struct {
	meta Meta

	Target             ref.EventID
	Body               string // superseding content, not the "* " fallback
	StructuredMentions []string
}

// ReactionEvent is an m.reaction annotation. Reactions never trigger
// responses; the dispatcher consumes them for stop signals.
type ReactionEvent struct {
	meta Meta

	Target ref.EventID
	Key    string
}

func (e TextEvent) Meta() Meta     { return e.meta }
func (e EditEvent) Meta() Meta     { return e.meta }
func (e ReactionEvent) Meta() Meta { return e.meta }

func (TextEvent) inbound()     {}
func (EditEvent) inbound()     {}
func (ReactionEvent) inbound() {}

// ParseInbound classifies a raw timeline event into the inbound sum.
// Returns false for event kinds the engine ignores (state events,
// redactions, bodyless noise).
func ParseInbound(event messaging.Event) (Inbound, bool) {
	meta := Meta{
		EventID:        event.EventID,
		RoomID:         event.RoomID,
		Sender:         event.Sender,
		Timestamp:      event.OriginServerTS,
		OriginalSender: event.OriginalSender(),
	}
	if root, ok := event.ThreadRoot(); ok {
		meta.ThreadRoot = root
	}
	if replyTo, ok := event.ReplyTo(); ok {
		meta.ReplyTo = replyTo
	}

	switch event.Type {
	case ref.EventTypeMessage:
		if event.IsEdit() {
			target, ok := event.EditTarget()
			if !ok {
				// m.new_content with no replace relation cannot be
				// correlated to an original; drop it.
				return nil, false
			}
			return EditEvent{
				meta:               meta,
				Target:             target,
				Body:               event.NewContentBody(),
				StructuredMentions: event.MentionedUserIDs(),
			}, true
		}
		if event.Body() == "" {
			return nil, false
		}
		return TextEvent{
			meta:               meta,
			Body:               event.Body(),
			MsgType:            event.MsgType(),
			StructuredMentions: event.MentionedUserIDs(),
		}, true

	case ref.EventTypeReaction:
		target, key, ok := event.ReactionTarget()
		if !ok {
			return nil, false
		}
		return ReactionEvent{meta: meta, Target: target, Key: key}, true
	}

	return nil, false
}

// NewTextEvent builds a text event directly. The dispatch layer and
// tests use it where no raw timeline event exists.
func NewTextEvent(meta Meta, body string, mentions []string) TextEvent {
	return TextEvent{meta: meta, Body: body, MsgType: "m.text", StructuredMentions: mentions}
}

// NewEditEvent mirrors NewTextEvent for superseding events.
func NewEditEvent(meta Meta, target ref.EventID, body string, mentions []string) EditEvent {
	return EditEvent{meta: meta, Target: target, Body: body, StructuredMentions: mentions}
}
