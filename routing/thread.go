// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mindroom-ai/mindroom/lib/identity"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/messaging"
)

// ThreadMode controls whether an agent participates in protocol-level
// threads or treats every room as one flat conversation.
type ThreadMode int

const (
	// ThreadScoped agents anchor context and session identity to the
	// thread root.
	ThreadScoped ThreadMode = iota

	// RoomScoped agents never use threads regardless of message
	// shape; their session identity is the bare room ID.
	RoomScoped
)

// HistoryMessage is one edit-resolved message in a thread's history.
// Body is always the latest superseding content; a superseded body is
// never exposed to a model.
type HistoryMessage struct {
	Sender    string
	Body      string
	EventID   ref.EventID
	Timestamp int64
}

// ThreadContext is the per-event conversational scope. SessionID is
// the key the model layer isolates memory under: the bare room ID for
// room scope, roomID + ":" + threadID for thread scope. Two threads
// in the same room never share a session.
type ThreadContext struct {
	IsThread  bool
	ThreadID  ref.EventID
	History   []HistoryMessage
	SessionID string
}

// SessionID computes the session key for a room and optional thread.
func SessionID(roomID ref.RoomID, threadID ref.EventID) string {
	if threadID.IsZero() {
		return roomID.String()
	}
	return roomID.String() + ":" + threadID.String()
}

// maxHistoryPages bounds pagination on pathologically long threads.
// An empty page is not a stop condition; only root discovery, source
// exhaustion, or this bound terminates the walk.
const maxHistoryPages = 30

// historyPageLimit is the per-page event count requested from the
// homeserver.
const historyPageLimit = 100

// Resolver derives ThreadContext for inbound events. History fetch
// failures degrade to whatever the snapshot cache holds, or to empty
// history: a response with no memory beats no response.
type Resolver struct {
	session  messaging.Session
	cache    *HistoryCache
	logger   *slog.Logger
	maxPages int
}

// NewResolver returns a Resolver over the given session. cache may be
// nil to disable snapshot caching.
func NewResolver(session messaging.Session, cache *HistoryCache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		session:  session,
		cache:    cache,
		logger:   logger,
		maxPages: maxHistoryPages,
	}
}

// Resolve computes the thread context for an event. It never fails:
// ambiguity resolves to room scope and fetch errors degrade to cached
// or empty history.
func (r *Resolver) Resolve(ctx context.Context, meta Meta, mode ThreadMode) ThreadContext {
	if mode == RoomScoped {
		return ThreadContext{SessionID: SessionID(meta.RoomID, ref.EventID{})}
	}

	root := meta.ThreadRoot
	if root.IsZero() && !meta.ReplyTo.IsZero() {
		root = r.adoptThreadFromReply(ctx, meta.RoomID, meta.ReplyTo)
	}
	if root.IsZero() {
		return ThreadContext{SessionID: SessionID(meta.RoomID, ref.EventID{})}
	}

	sessionID := SessionID(meta.RoomID, root)
	return ThreadContext{
		IsThread:  true,
		ThreadID:  root,
		History:   r.fetchHistory(ctx, meta.RoomID, root, sessionID),
		SessionID: sessionID,
	}
}

// adoptThreadFromReply handles clients that reply to a thread message
// without thread fallback semantics: fetch the referenced event once
// and adopt its thread root if it has one. One hop only; a reply to a
// reply outside a thread stays room scope.
func (r *Resolver) adoptThreadFromReply(ctx context.Context, roomID ref.RoomID, replyTo ref.EventID) ref.EventID {
	referenced, err := r.session.GetEvent(ctx, roomID, replyTo)
	if err != nil {
		r.logger.Warn("reply-chain walk failed, treating as room scope",
			"room_id", roomID,
			"reply_to", replyTo,
			"error", err,
		)
		return ref.EventID{}
	}
	if root, ok := referenced.ThreadRoot(); ok {
		return root
	}
	return ref.EventID{}
}

// fetchHistory returns the edit-resolved history for a thread. The
// snapshot cache short-circuits re-pagination of long threads across
// restarts and serves as the fallback when the homeserver fetch
// fails.
func (r *Resolver) fetchHistory(ctx context.Context, roomID ref.RoomID, root ref.EventID, sessionID string) []HistoryMessage {
	var cached []threadEvent
	if r.cache != nil {
		cached, _ = r.cache.Load(sessionID)
	}
	known := make(map[string]struct{}, len(cached))
	for _, event := range cached {
		known[event.EventID] = struct{}{}
	}

	fetched, err := r.fetchThreadEvents(ctx, roomID, root, known)
	if err != nil {
		r.logger.Warn("thread history fetch failed, degrading",
			"room_id", roomID,
			"thread_root", root,
			"cached_events", len(cached),
			"error", err,
		)
		return resolveHistory(cached)
	}

	merged := mergeEvents(cached, fetched)
	if _, ok := eventByID(merged, root.String()); !ok {
		if rootEvent, err := r.session.GetEvent(ctx, roomID, root); err == nil {
			merged = append(merged, projectEvent(*rootEvent))
		} else {
			r.logger.Warn("thread root fetch failed, history lacks root",
				"thread_root", root,
				"error", err,
			)
		}
	}

	if r.cache != nil {
		r.cache.Store(sessionID, merged)
	}
	return resolveHistory(merged)
}

// fetchThreadEvents fetches the thread's events from the homeserver.
// The relations endpoint is the primary source; servers without it
// fall back to filtered backward pagination of room history. known is
// the set of event IDs already held in the snapshot cache, used to
// stop the walk early once it reaches cached territory.
func (r *Resolver) fetchThreadEvents(ctx context.Context, roomID ref.RoomID, root ref.EventID, known map[string]struct{}) ([]threadEvent, error) {
	events, err := r.fetchViaRelations(ctx, roomID, root, known)
	if err == nil {
		return events, nil
	}
	if messaging.IsMatrixError(err, messaging.ErrCodeUnknown) || messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
		r.logger.Debug("relations endpoint unavailable, paginating room history",
			"room_id", roomID,
			"error", err,
		)
		return r.paginateRoomHistory(ctx, roomID, root, known)
	}
	return nil, err
}

func (r *Resolver) fetchViaRelations(ctx context.Context, roomID ref.RoomID, root ref.EventID, known map[string]struct{}) ([]threadEvent, error) {
	var events []threadEvent
	from := ""
	for page := 0; page < r.maxPages; page++ {
		response, err := r.session.ThreadMessages(ctx, roomID, root, messaging.ThreadMessagesOptions{
			From:  from,
			Limit: historyPageLimit,
		})
		if err != nil {
			return nil, err
		}
		reachedKnown := false
		for _, event := range response.Chunk {
			if _, ok := known[event.EventID.String()]; ok {
				reachedKnown = true
				continue
			}
			events = append(events, projectEvent(event))
		}
		// Pages arrive newest first. Once a page touches cached
		// territory everything older is already in the snapshot.
		if reachedKnown || response.NextBatch == "" {
			return events, nil
		}
		from = response.NextBatch
	}
	return events, nil
}

// paginateRoomHistory walks room history backward, keeping events
// that belong to the thread. The walk ends when the thread root has
// been observed or the history is exhausted; a page with zero
// thread-relevant events does not end it, since older pages may still
// hold the root.
func (r *Resolver) paginateRoomHistory(ctx context.Context, roomID ref.RoomID, root ref.EventID, known map[string]struct{}) ([]threadEvent, error) {
	var events []threadEvent
	from := ""
	for page := 0; page < r.maxPages; page++ {
		response, err := r.session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
			From:      from,
			Direction: "b",
			Limit:     historyPageLimit,
		})
		if err != nil {
			return nil, err
		}
		rootSeen := false
		for _, event := range response.Chunk {
			if !threadMember(event, root) {
				continue
			}
			if event.EventID == root {
				rootSeen = true
			}
			if _, ok := known[event.EventID.String()]; ok {
				continue
			}
			events = append(events, projectEvent(event))
		}
		if rootSeen {
			return events, nil
		}
		if response.End == "" || response.End == from {
			return events, nil
		}
		from = response.End
	}
	return events, nil
}

// threadMember reports whether a raw event belongs to the thread:
// the root itself, an m.thread relation to the root, or any edit
// (edits relate via m.replace, not m.thread; edit resolution discards
// those whose target is outside the thread).
func threadMember(event messaging.Event, root ref.EventID) bool {
	if event.EventID == root {
		return true
	}
	if threadRoot, ok := event.ThreadRoot(); ok && threadRoot == root {
		return true
	}
	return event.IsEdit()
}

// threadEvent is the projection of a raw event the resolver and the
// snapshot cache operate on. EditTarget is non-empty for superseding
// events.
type threadEvent struct {
	EventID    string `cbor:"event_id"`
	Sender     string `cbor:"sender"`
	Body       string `cbor:"body"`
	Timestamp  int64  `cbor:"ts"`
	EditTarget string `cbor:"edit_target,omitempty"`
}

// projectEvent converts a raw event. Relayed events surface the
// original human sender so history attributes speech to the speaker,
// not the relay.
func projectEvent(event messaging.Event) threadEvent {
	sender := event.Sender.String()
	if original := event.OriginalSender(); original != "" {
		sender = original
	}
	projected := threadEvent{
		EventID:   event.EventID.String(),
		Sender:    sender,
		Body:      event.Body(),
		Timestamp: event.OriginServerTS,
	}
	if target, ok := event.EditTarget(); ok {
		projected.EditTarget = target.String()
		projected.Body = event.NewContentBody()
	}
	return projected
}

func eventByID(events []threadEvent, id string) (threadEvent, bool) {
	for _, event := range events {
		if event.EventID == id {
			return event, true
		}
	}
	return threadEvent{}, false
}

// mergeEvents unions two event sets by ID, cached set first.
func mergeEvents(cached, fetched []threadEvent) []threadEvent {
	seen := make(map[string]struct{}, len(cached)+len(fetched))
	merged := make([]threadEvent, 0, len(cached)+len(fetched))
	for _, list := range [][]threadEvent{cached, fetched} {
		for _, event := range list {
			if _, ok := seen[event.EventID]; ok {
				continue
			}
			seen[event.EventID] = struct{}{}
			merged = append(merged, event)
		}
	}
	return merged
}

// resolveHistory applies edit resolution and ordering: exactly one
// final body per logical message, last edit wins by timestamp with
// the event ID as the deterministic tie-break, chronological output
// including the thread root.
func resolveHistory(events []threadEvent) []HistoryMessage {
	type winner struct {
		body      string
		timestamp int64
		eventID   string
	}

	bases := make(map[string]threadEvent)
	edits := make(map[string]winner)
	for _, event := range events {
		if event.EditTarget == "" {
			bases[event.EventID] = event
			continue
		}
		current, ok := edits[event.EditTarget]
		if !ok || laterEdit(event.Timestamp, event.EventID, current.timestamp, current.eventID) {
			edits[event.EditTarget] = winner{body: event.Body, timestamp: event.Timestamp, eventID: event.EventID}
		}
	}

	history := make([]HistoryMessage, 0, len(bases))
	for id, base := range bases {
		body := base.Body
		if edit, ok := edits[id]; ok {
			body = edit.body
		}
		eventID, err := ref.ParseEventID(id)
		if err != nil {
			continue
		}
		history = append(history, HistoryMessage{
			Sender:    base.Sender,
			Body:      body,
			EventID:   eventID,
			Timestamp: base.Timestamp,
		})
	}
	sort.Slice(history, func(i, j int) bool {
		if history[i].Timestamp != history[j].Timestamp {
			return history[i].Timestamp < history[j].Timestamp
		}
		return history[i].EventID.String() < history[j].EventID.String()
	})
	return history
}

// laterEdit reports whether edit a supersedes edit b.
func laterEdit(aTS int64, aID string, bTS int64, bID string) bool {
	if aTS != bTS {
		return aTS > bTS
	}
	return aID > bID
}

// AgentParticipants returns the distinct local agent and team names
// that have spoken in the history, sorted. The router does not count:
// it relays and coordinates but never converses. Foreign-domain
// lookalike senders never resolve and so never count.
func AgentParticipants(history []HistoryMessage, registry *identity.Registry) []string {
	seen := make(map[string]struct{})
	for _, message := range history {
		actor, ok := registry.ResolveName(message.Sender)
		if !ok || actor.Kind() == identity.KindRouter {
			continue
		}
		seen[actor.Name()] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
