// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mindroom-ai/mindroom/dispatch"
	"github.com/mindroom-ai/mindroom/lib/authz"
	"github.com/mindroom-ai/mindroom/lib/dedup"
	"github.com/mindroom-ai/mindroom/lib/identity"
	"github.com/mindroom-ai/mindroom/lib/invite"
	"github.com/mindroom-ai/mindroom/lib/mention"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/messaging"
	"github.com/mindroom-ai/mindroom/routing"
)

// StopEmoji cancels an in-flight streamed response when reacted onto
// the message being answered.
const StopEmoji = "🛑"

// mentionMemoLimit bounds the per-runner memory of which recent
// events mentioned this agent, used to detect edits that introduce a
// new mention. When the memo fills it is dropped wholesale; a lost
// entry only means an edit is treated as newly mentioning.
const mentionMemoLimit = 4096

// Suggester produces a multi-agent suggestion for a complex
// room-scope message that addresses nobody. A nil or empty result
// means no suggestion; suggestions with fewer than two agents never
// form a team.
type Suggester interface {
	Suggest(ctx context.Context, body string) []string
}

// Scheduler accepts deferred work from the !schedule command. The
// scheduling machinery itself lives outside this process.
type Scheduler interface {
	Schedule(ctx context.Context, requester ref.UserID, when, prompt string) error
}

// Config wires one Runner.
type Config struct {
	// Name is the agent's short name, registered in Registry.
	Name string

	Session     messaging.Session
	Registry    *identity.Registry
	Checker     *authz.Checker
	Invites     *invite.Table
	Resolver    *routing.Resolver
	Tracker     *dedup.Tracker
	Coordinator *dispatch.Coordinator

	// Teams is the formation configuration shared by all runners.
	Teams routing.TeamConfig

	// Scope is the agent's thread mode.
	Scope routing.ThreadMode

	// Rooms are the rooms the agent serves. Empty means every room
	// the session is joined to. Invitations extend the set: an
	// invited agent handles the covered room or thread regardless.
	Rooms []ref.RoomID

	// RoomKeys supplies extra authorization lookup keys for rooms
	// known under a configured key or alias. Missing rooms fall
	// back to their room ID.
	RoomKeys map[ref.RoomID]authz.RoomKeys

	// Streaming responds with debounced incremental edits.
	Streaming bool

	Suggester Suggester
	Scheduler Scheduler
	Logger    *slog.Logger
}

// Runner is one agent's sequential event loop.
type Runner struct {
	name        string
	self        identity.Identity
	session     messaging.Session
	registry    *identity.Registry
	checker     *authz.Checker
	invites     *invite.Table
	resolver    *routing.Resolver
	tracker     *dedup.Tracker
	coordinator *dispatch.Coordinator
	teams       routing.TeamConfig
	scope       routing.ThreadMode
	rooms       map[ref.RoomID]bool
	roomKeys    map[ref.RoomID]authz.RoomKeys
	streaming   bool
	suggester   Suggester
	scheduler   Scheduler
	commandLead bool
	logger      *slog.Logger

	// mentionedMe records whether a recent inbound event mentioned
	// this agent, keyed by event ID. Only the loop touches it.
	mentionedMe map[string]bool

	// active maps a session ID to the inbound event whose streamed
	// response is in flight. Guarded by mu; the response goroutine
	// clears its own entry.
	mu     sync.Mutex
	active map[string]ref.EventID
	wg     sync.WaitGroup
}

// New builds a Runner. The agent name must be registered.
func New(cfg Config) (*Runner, error) {
	self, ok := cfg.Registry.Lookup(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("agent: %q is not a registered agent", cfg.Name)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rooms := make(map[ref.RoomID]bool, len(cfg.Rooms))
	for _, room := range cfg.Rooms {
		rooms[room] = true
	}
	return &Runner{
		name:        cfg.Name,
		self:        self,
		session:     cfg.Session,
		registry:    cfg.Registry,
		checker:     cfg.Checker,
		invites:     cfg.Invites,
		resolver:    cfg.Resolver,
		tracker:     cfg.Tracker,
		coordinator: cfg.Coordinator,
		teams:       cfg.Teams,
		scope:       cfg.Scope,
		rooms:       rooms,
		roomKeys:    cfg.RoomKeys,
		streaming:   cfg.Streaming,
		suggester:   cfg.Suggester,
		scheduler:   cfg.Scheduler,
		commandLead: routing.IsDesignatedRouter(cfg.Name, cfg.Registry.AgentNames()),
		logger:      logger.With("agent", cfg.Name),
		mentionedMe: make(map[string]bool),
		active:      make(map[string]ref.EventID),
	}, nil
}

// Run joins the configured rooms, opens the sync stream at the
// current position, and pumps events until ctx is cancelled. In-flight
// streamed responses are waited for on the way out.
func (r *Runner) Run(ctx context.Context) error {
	defer r.wg.Wait()

	for room := range r.rooms {
		if _, err := r.session.JoinRoom(ctx, room); err != nil {
			r.logger.Warn("joining room failed", "room", room, "error", err)
		}
	}

	// The sync filter stays unrestricted by room: invitations can
	// extend the served set at any time, so room gating happens per
	// event in servesRoom instead of in the server-side filter.
	stream, err := messaging.OpenStream(ctx, r.session, messaging.StreamFilter{
		TimelineTypes: []string{
			string(ref.EventTypeMessage),
			string(ref.EventTypeReaction),
		},
	}, r.logger)
	if err != nil {
		return err
	}

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("agent %s: event stream: %w", r.name, err)
		}
		r.Handle(ctx, event)
	}
}

// Handle processes one timeline event. Denials of every kind are
// silent; only accepted work produces outbound traffic.
func (r *Runner) Handle(ctx context.Context, event messaging.Event) {
	inbound, ok := routing.ParseInbound(event)
	if !ok {
		return
	}
	meta := inbound.Meta()

	if !r.servesRoom(meta) {
		return
	}

	sender := r.checker.EffectiveSender(meta.Sender, meta.OriginalSender)
	senderIsSelf := sender == r.self.UserID() || meta.Sender == r.self.UserID()
	senderIsActor := r.registry.IsActor(sender.String())

	if reaction, isReaction := inbound.(routing.ReactionEvent); isReaction {
		if reaction.Key == StopEmoji && !senderIsSelf && r.authorized(sender, senderIsActor, meta.RoomID) {
			r.coordinator.CancelOutbound(reaction.Target)
		}
		return
	}

	// Echo suppression: the agent's own messages, and any actor's
	// edits, never trigger anything further.
	if senderIsSelf {
		return
	}
	_, isEdit := inbound.(routing.EditEvent)
	if senderIsActor && isEdit {
		return
	}

	if !r.authorized(sender, senderIsActor, meta.RoomID) {
		return
	}

	var body string
	var structured []string
	originalID := meta.EventID
	resolveMeta := meta
	switch e := inbound.(type) {
	case routing.TextEvent:
		body = e.Body
		structured = e.StructuredMentions
	case routing.EditEvent:
		body = e.Body
		structured = e.StructuredMentions
		originalID = e.Target
		// Edits carry only the replace relation. The resolver's
		// one-hop reply walk adopts the superseded event's thread.
		if resolveMeta.ThreadRoot.IsZero() && resolveMeta.ReplyTo.IsZero() {
			resolveMeta.ReplyTo = e.Target
		}
	}

	if cmd, isCommand := mention.ParseCommand(body); isCommand {
		r.handleCommand(ctx, cmd, meta, sender)
		return
	}

	mentions := mention.Check(body, structured, r.registry, r.name)
	editAddsMention := false
	if isEdit {
		editAddsMention = !senderIsActor && mentions.Me && !r.mentionedMe[originalID.String()]
	}
	r.rememberMention(originalID, mentions.Me)

	resolved := r.resolver.Resolve(ctx, resolveMeta, r.scope)
	threadAgents := routing.AgentParticipants(resolved.History, r.registry)
	invited := r.invites.Invited(r.name, meta.RoomID, resolved.ThreadID)

	answered, err := r.tracker.HasResponded(ctx, r.name, originalID)
	if err != nil {
		r.logger.Error("dedup lookup failed", "event", originalID, "error", err)
		return
	}
	var priorOutbound ref.EventID
	if answered {
		priorOutbound, _, _ = r.tracker.ResponseEventID(ctx, r.name, originalID)
	}

	decision := routing.Decide(routing.DecisionInput{
		AgentName:        r.name,
		SenderIsSelf:     senderIsSelf,
		SenderIsActor:    senderIsActor,
		IsEdit:           isEdit,
		EditAddsMention:  editAddsMention,
		SelfMentioned:    mentions.Me,
		IsThread:         resolved.IsThread,
		ThreadAgents:     threadAgents,
		Invited:          invited,
		OriginalAnswered: answered,
		PriorOutbound:    priorOutbound,
	})

	var suggestion []string
	if r.suggester != nil && !resolved.IsThread && !mentions.Any {
		suggestion = r.suggester.Suggest(ctx, body)
	}
	team := routing.DecideTeamFormation(routing.TeamInput{
		MentionedNames:   mentions.Names,
		ThreadAgents:     threadAgents,
		IsThread:         resolved.IsThread,
		RouterSuggestion: suggestion,
	}, r.teams)

	task := dispatch.Task{
		OriginalID: originalID,
		RoomID:     meta.RoomID,
		Requester:  sender,
		Context:    resolved,
		Prompt:     body,
		Streaming:  r.streaming,
		Scope:      r.scope,
	}

	// A formed team covering this agent supersedes the individual
	// decision: the individual rules address one agent, the formation
	// engine addresses the set, and the set wins. The one exception is
	// a routed edit-in-place, which keeps updating the existing
	// individual reply rather than spawning a team response to an
	// already-answered message.
	if team.Form && slices.Contains(team.Agents, r.name) && decision.Action != routing.EditExisting {
		if err := r.coordinator.RespondAsTeam(ctx, team, task); err != nil {
			r.logger.Error("team response failed", "event", originalID, "error", err)
		}
		return
	}

	switch decision.Action {
	case routing.Respond:
		r.respond(ctx, task)
	case routing.EditExisting:
		if err := r.coordinator.EditExisting(ctx, task, decision.PriorOutbound); err != nil {
			r.logger.Error("editing response failed", "event", originalID, "error", err)
		}
	case routing.Ignore, routing.DeferToTeam:
		// DeferToTeam without a formed team that includes this
		// agent means the others own the thread.
	}
}

// respond dispatches a single-agent response. Streaming responses run
// in their own goroutine so the loop stays free to process a stop
// command against them; blocking responses acknowledge first since
// generation may be slow.
func (r *Runner) respond(ctx context.Context, task dispatch.Task) {
	if !task.Streaming {
		r.coordinator.Acknowledge(ctx, task.RoomID, task.OriginalID)
		if err := r.coordinator.Respond(ctx, task); err != nil {
			r.logger.Error("response failed", "event", task.OriginalID, "error", err)
		}
		return
	}

	sessionID := task.Context.SessionID
	r.mu.Lock()
	r.active[sessionID] = task.OriginalID
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.coordinator.Respond(ctx, task); err != nil {
			r.logger.Error("streamed response failed", "event", task.OriginalID, "error", err)
		}
		r.mu.Lock()
		if r.active[sessionID] == task.OriginalID {
			delete(r.active, sessionID)
		}
		r.mu.Unlock()
	}()
}

// cancelActive stops the streamed response running in the given
// session, if any.
func (r *Runner) cancelActive(sessionID string) bool {
	r.mu.Lock()
	inbound, ok := r.active[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.coordinator.CancelOutbound(inbound)
}

// servesRoom reports whether the agent handles events in the event's
// room: configured for it, configured for everything, or holding a
// live invitation covering the room or the event's thread.
func (r *Runner) servesRoom(meta routing.Meta) bool {
	if len(r.rooms) == 0 || r.rooms[meta.RoomID] {
		return true
	}
	return r.invites.Invited(r.name, meta.RoomID, meta.ThreadRoot)
}

// authorized runs the sender permission checks. Internal actor
// identities pass; everyone else needs room access and must be on the
// agent's reply list.
func (r *Runner) authorized(sender ref.UserID, senderIsActor bool, room ref.RoomID) bool {
	if senderIsActor {
		return true
	}
	if !r.checker.AuthorizedSender(sender, r.lookupKeys(room)) {
		return false
	}
	return r.checker.AllowedForAgentReply(sender, r.name)
}

func (r *Runner) lookupKeys(room ref.RoomID) authz.RoomKeys {
	if keys, ok := r.roomKeys[room]; ok {
		return keys
	}
	return authz.RoomKeys{ID: room}
}

func (r *Runner) rememberMention(eventID ref.EventID, mentioned bool) {
	if len(r.mentionedMe) >= mentionMemoLimit {
		clear(r.mentionedMe)
	}
	r.mentionedMe[eventID.String()] = mentioned
}
