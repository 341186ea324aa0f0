// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/mindroom-ai/mindroom/lib/ref"
)

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// MessageContent is the content body of an m.room.message event.
// Threads, edits, and HTML-formatted bodies are expressed through the
// optional fields; use the New* constructors rather than filling this
// in by hand.
//
// OriginalSender carries the human sender when an internal identity
// relays a message on someone's behalf (voice transcription). The
// permission layer substitutes it for the observed sender.
type MessageContent struct {
	MsgType        string      `json:"msgtype"`
	Body           string      `json:"body"`
	Format         string      `json:"format,omitempty"`
	FormattedBody  string      `json:"formatted_body,omitempty"`
	OriginalSender string      `json:"original_sender,omitempty"`
	Mentions       *Mentions   `json:"m.mentions,omitempty"`
	RelatesTo      *RelatesTo  `json:"m.relates_to,omitempty"`
	NewContent     *NewContent `json:"m.new_content,omitempty"`
}

// NewContent is the superseding content of an edit event.
type NewContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// Mentions identifies users a message is addressed to, per the Matrix
// m.mentions format: fully-qualified user IDs.
type Mentions struct {
	UserIDs []string `json:"user_ids,omitempty"`
}

// RelatesTo expresses relationships between events. For threads,
// RelType is "m.thread" and EventID is the thread root. For edits,
// RelType is "m.replace" and EventID is the event being superseded.
// For reactions, RelType is "m.annotation" and Key is the emoji.
type RelatesTo struct {
	RelType       string      `json:"rel_type,omitempty"`
	EventID       ref.EventID `json:"event_id,omitempty"`
	Key           string      `json:"key,omitempty"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event being replied to.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// Relation type constants.
const (
	RelThread     = "m.thread"
	RelReplace    = "m.replace"
	RelAnnotation = "m.annotation"
)

// NewText creates a plain text message with no thread context.
func NewText(body string) MessageContent {
	return MessageContent{MsgType: "m.text", Body: body}
}

// NewNotice creates an m.notice message. Notices are for bot output
// that other bots should not react to; mindroom uses them for command
// errors and denial messages.
func NewNotice(body string) MessageContent {
	return MessageContent{MsgType: "m.notice", Body: body}
}

// NewThreadReply creates a message that replies within an existing
// thread. threadRoot is the event ID of the thread's root message.
func NewThreadReply(threadRoot ref.EventID, body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
		RelatesTo: &RelatesTo{
			RelType:       RelThread,
			EventID:       threadRoot,
			IsFallingBack: true,
			InReplyTo:     &InReplyTo{EventID: threadRoot},
		},
	}
}

// NewReply creates a plain reply to an existing event, with no thread
// relation. Room-scoped responses use this so the answer stays tied to
// the message it answers without opening a thread.
func NewReply(target ref.EventID, body string) MessageContent {
	return MessageContent{
		MsgType: "m.text",
		Body:    body,
		RelatesTo: &RelatesTo{
			InReplyTo: &InReplyTo{EventID: target},
		},
	}
}

// NewEdit creates an edit of a previously sent message. target is the
// event being superseded. Per the Matrix spec the top-level body is a
// fallback ("* " prefix) and the real content travels in
// m.new_content.
func NewEdit(target ref.EventID, content MessageContent) MessageContent {
	return MessageContent{
		MsgType:       content.MsgType,
		Body:          "* " + content.Body,
		Format:        content.Format,
		FormattedBody: content.FormattedBody,
		RelatesTo: &RelatesTo{
			RelType: RelReplace,
			EventID: target,
		},
		NewContent: &NewContent{
			MsgType:       content.MsgType,
			Body:          content.Body,
			Format:        content.Format,
			FormattedBody: content.FormattedBody,
		},
	}
}

// ReactionContent is the content body of an m.reaction event.
type ReactionContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}

// NewReaction creates a reaction to target with the given emoji key.
func NewReaction(target ref.EventID, key string) ReactionContent {
	return ReactionContent{
		RelatesTo: RelatesTo{
			RelType: RelAnnotation,
			EventID: target,
			Key:     key,
		},
	}
}

// Event represents a Matrix event from the server. Content stays a
// raw map: event kinds vary and the routing layer parses them into
// its typed inbound sum.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// Body returns the plain-text body, or "" for bodyless events.
func (e Event) Body() string {
	body, _ := e.Content["body"].(string)
	return body
}

// MsgType returns the msgtype field, or "".
func (e Event) MsgType() string {
	msgType, _ := e.Content["msgtype"].(string)
	return msgType
}

// OriginalSender returns the relayed original-sender field, or "".
func (e Event) OriginalSender() string {
	sender, _ := e.Content["original_sender"].(string)
	return sender
}

// relation returns the m.relates_to map, or nil.
func (e Event) relation() map[string]any {
	rel, _ := e.Content["m.relates_to"].(map[string]any)
	return rel
}

// relationOfType returns the related event ID when the event carries
// a relation of the given type.
func (e Event) relationOfType(relType string) (ref.EventID, bool) {
	rel := e.relation()
	if rel == nil {
		return ref.EventID{}, false
	}
	if got, _ := rel["rel_type"].(string); got != relType {
		return ref.EventID{}, false
	}
	raw, _ := rel["event_id"].(string)
	id, err := ref.ParseEventID(raw)
	if err != nil {
		return ref.EventID{}, false
	}
	return id, true
}

// ThreadRoot returns the thread root when the event carries an
// m.thread relation.
func (e Event) ThreadRoot() (ref.EventID, bool) {
	return e.relationOfType(RelThread)
}

// ReplyTo returns the replied-to event ID when the event carries an
// m.in_reply_to reference, with or without a thread relation.
func (e Event) ReplyTo() (ref.EventID, bool) {
	rel := e.relation()
	if rel == nil {
		return ref.EventID{}, false
	}
	inReplyTo, _ := rel["m.in_reply_to"].(map[string]any)
	if inReplyTo == nil {
		return ref.EventID{}, false
	}
	raw, _ := inReplyTo["event_id"].(string)
	id, err := ref.ParseEventID(raw)
	if err != nil {
		return ref.EventID{}, false
	}
	return id, true
}

// IsEdit reports whether the event supersedes an earlier one: it
// carries m.new_content or an m.replace relation.
func (e Event) IsEdit() bool {
	if _, ok := e.Content["m.new_content"]; ok {
		return true
	}
	_, ok := e.relationOfType(RelReplace)
	return ok
}

// EditTarget returns the event ID this edit supersedes. Edits must be
// correlated to the original event, never treated as new messages.
func (e Event) EditTarget() (ref.EventID, bool) {
	return e.relationOfType(RelReplace)
}

// NewContentBody returns the superseding body of an edit. Falls back
// to the top-level body (with the "* " fallback prefix trimmed by the
// caller if desired) when m.new_content is absent.
func (e Event) NewContentBody() string {
	if newContent, ok := e.Content["m.new_content"].(map[string]any); ok {
		if body, ok := newContent["body"].(string); ok {
			return body
		}
	}
	return e.Body()
}

// MentionedUserIDs returns the raw user IDs from the structured
// m.mentions block. Entries are unvalidated; the identity registry
// filters unknown and foreign-domain IDs.
func (e Event) MentionedUserIDs() []string {
	mentions, ok := e.Content["m.mentions"].(map[string]any)
	if !ok {
		return nil
	}
	rawList, ok := mentions["user_ids"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rawList))
	for _, raw := range rawList {
		if id, ok := raw.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReactionTarget returns the annotated event and emoji key for an
// m.reaction event.
func (e Event) ReactionTarget() (target ref.EventID, key string, ok bool) {
	target, ok = e.relationOfType(RelAnnotation)
	if !ok {
		return ref.EventID{}, "", false
	}
	key, _ = e.relation()["key"].(string)
	return target, key, true
}

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// ThreadMessagesOptions controls pagination for thread fetching.
type ThreadMessagesOptions struct {
	From  string
	Limit int
}

// ThreadMessagesResponse is returned by ThreadMessages.
type ThreadMessagesResponse struct {
	Chunk     []Event `json:"chunk"`
	NextBatch string  `json:"next_batch,omitempty"`
}

// SyncOptions controls the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds
	SetTimeout bool   // send the timeout parameter even when zero
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership
// state. Map keys decode through ref.RoomID's TextUnmarshaler.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
}

// JoinedRoom contains sync data for a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// InviteRequest holds the user ID to invite to a room.
type InviteRequest struct {
	UserID ref.UserID `json:"user_id"`
}

// SendEventResponse is returned by SendMessage and SendEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse is returned by ResolveAlias.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// RoomMember represents a member of a room.
type RoomMember struct {
	UserID      ref.UserID `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Membership  string     `json:"membership"`
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey ref.UserID        `json:"state_key"`
	Sender   ref.UserID        `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of an m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}
