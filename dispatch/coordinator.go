// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mindroom-ai/mindroom/lib/clock"
	"github.com/mindroom-ai/mindroom/lib/dedup"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/messaging"
	"github.com/mindroom-ai/mindroom/routing"
)

// AckEmoji is the reaction the coordinator uses to acknowledge a
// message it accepted for processing.
const AckEmoji = "👀"

// Config assembles a Coordinator. TeamSessions optionally maps
// predefined team names to their own sessions; a team without one
// sends through the agent's session.
type Config struct {
	Agent        string
	Session      messaging.Session
	Generator    Generator
	Tracker      *dedup.Tracker
	Limiter      *Limiter
	TeamSessions map[string]messaging.Session
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Coordinator turns routing decisions into outbound messages for one
// agent. It is owned by that agent's sequential event loop; the only
// cross-goroutine surface is CancelOutbound, which stop commands
// invoke from the same loop while a generation runs in flight.
type Coordinator struct {
	agent        string
	session      messaging.Session
	generator    Generator
	tracker      *dedup.Tracker
	limiter      *Limiter
	teamSessions map[string]messaging.Session
	clk          clock.Clock
	logger       *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc // outbound or inbound event ID → cancel
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Coordinator{
		agent:        cfg.Agent,
		session:      cfg.Session,
		generator:    cfg.Generator,
		tracker:      cfg.Tracker,
		limiter:      cfg.Limiter,
		teamSessions: cfg.TeamSessions,
		clk:          clk,
		logger:       logger,
	}
}

// Task is one finalized positive decision ready for dispatch.
// OriginalID is the un-superseded inbound event ID the dedup tracker
// keys on: for edits it is the edit target, otherwise the event ID
// itself. Requester is the effective (relay-unwrapped) sender, used
// for rate limiting.
type Task struct {
	OriginalID ref.EventID
	RoomID     ref.RoomID
	Requester  ref.UserID
	Context    routing.ThreadContext
	Prompt     string
	Streaming  bool

	// Scope decides how a response with no resolved thread relates to
	// the inbound message: a thread-scoped agent roots a new thread at
	// OriginalID, a room-scoped agent sends a plain reply.
	Scope routing.ThreadMode
}

// Respond generates and sends a single-agent response. The dedup
// check runs as the last gate before generation, and the tracker is
// marked only after the send succeeds; a send failure leaves the
// event unanswered and retryable.
func (c *Coordinator) Respond(ctx context.Context, task Task) error {
	if c.limiter != nil && !c.limiter.Allow(c.agent, task.Requester, task.RoomID) {
		c.logger.Warn("reply rate limit hit",
			"agent", c.agent,
			"requester", task.Requester,
			"room_id", task.RoomID,
		)
		return nil
	}

	answered, err := c.tracker.HasResponded(ctx, c.agent, task.OriginalID)
	if err != nil {
		return fmt.Errorf("dispatch: dedup lookup: %w", err)
	}
	if answered {
		c.logger.Debug("duplicate suppressed", "agent", c.agent, "inbound", task.OriginalID)
		return nil
	}

	outbound, err := c.generateAndSend(ctx, task)
	if err != nil {
		return err
	}
	if err := c.tracker.MarkResponded(ctx, c.agent, task.OriginalID, outbound); err != nil {
		return fmt.Errorf("dispatch: mark responded: %w", err)
	}
	return nil
}

// EditExisting regenerates for an edited inbound event and updates
// the prior outbound message in place. The dedup mapping keeps the
// same outbound ID, so further edits keep editing the same reply.
func (c *Coordinator) EditExisting(ctx context.Context, task Task, priorOutbound ref.EventID) error {
	if priorOutbound.IsZero() {
		var ok bool
		priorOutbound, ok, _ = c.tracker.ResponseEventID(ctx, c.agent, task.OriginalID)
		if !ok {
			// Record lost (pruned): answer fresh instead.
			return c.Respond(ctx, task)
		}
	}

	text, err := c.generator.Generate(ctx, c.request(task))
	if err != nil {
		return fmt.Errorf("dispatch: regenerate for edit: %w", err)
	}
	if err := c.edit(ctx, task.RoomID, priorOutbound, text); err != nil {
		return fmt.Errorf("dispatch: edit response: %w", err)
	}
	if err := c.tracker.MarkResponded(ctx, c.agent, task.OriginalID, priorOutbound); err != nil {
		return fmt.Errorf("dispatch: mark responded: %w", err)
	}
	return nil
}

func (c *Coordinator) generateAndSend(ctx context.Context, task Task) (ref.EventID, error) {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.trackInflight(task.OriginalID, cancel)
	defer c.untrackInflight(task.OriginalID)

	if task.Streaming {
		chunks, err := c.generator.Stream(genCtx, c.request(task))
		if err != nil {
			return ref.EventID{}, fmt.Errorf("dispatch: start stream: %w", err)
		}
		outbound, err := c.streamResponse(genCtx, task, chunks)
		if err != nil {
			return ref.EventID{}, err
		}
		if outbound.IsZero() {
			return ref.EventID{}, fmt.Errorf("dispatch: cancelled before first send")
		}
		return outbound, nil
	}

	text, err := c.generator.Generate(genCtx, c.request(task))
	if err != nil {
		return ref.EventID{}, fmt.Errorf("dispatch: generate: %w", err)
	}
	outbound, err := c.send(ctx, task, text)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("dispatch: send response: %w", err)
	}
	return outbound, nil
}

// outboundContent relates a response to the conversation. A resolved
// thread carries the reply; without one, a thread-scoped agent roots a
// new thread at the inbound message and a room-scoped agent replies
// plainly.
func outboundContent(task Task, body string) messaging.MessageContent {
	if !task.Context.ThreadID.IsZero() {
		return messaging.NewThreadReply(task.Context.ThreadID, body)
	}
	if task.Scope == routing.RoomScoped {
		return messaging.NewReply(task.OriginalID, body)
	}
	return messaging.NewThreadReply(task.OriginalID, body)
}

func (c *Coordinator) request(task Task) Request {
	return Request{
		Agent:     c.agent,
		SessionID: task.Context.SessionID,
		Prompt:    task.Prompt,
		History:   task.Context.History,
	}
}

// CancelOutbound stops the in-flight generation answering the given
// inbound event. The partial response already posted stands and the
// event stays recorded as answered; a cancelled response is not
// retried.
func (c *Coordinator) CancelOutbound(inboundID ref.EventID) bool {
	c.mu.Lock()
	cancel, ok := c.inflight[inboundID.String()]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (c *Coordinator) trackInflight(inboundID ref.EventID, cancel context.CancelFunc) {
	c.mu.Lock()
	if c.inflight == nil {
		c.inflight = make(map[string]context.CancelFunc)
	}
	c.inflight[inboundID.String()] = cancel
	c.mu.Unlock()
}

func (c *Coordinator) untrackInflight(inboundID ref.EventID) {
	c.mu.Lock()
	delete(c.inflight, inboundID.String())
	c.mu.Unlock()
}

// Acknowledge reacts to an inbound message the agent accepted for
// slow processing, so the room sees it was heard.
func (c *Coordinator) Acknowledge(ctx context.Context, roomID ref.RoomID, target ref.EventID) {
	if _, err := c.session.SendReaction(ctx, roomID, messaging.NewReaction(target, AckEmoji)); err != nil {
		c.logger.Debug("acknowledgement reaction failed", "target", target, "error", err)
	}
}

// SendNotice posts an m.notice into the room (threaded when
// threadRoot is set). Used for command errors; other bots ignore
// notices, so notices never feed back into routing.
func (c *Coordinator) SendNotice(ctx context.Context, roomID ref.RoomID, threadRoot ref.EventID, text string) error {
	content := messaging.NewNotice(text)
	if !threadRoot.IsZero() {
		content.RelatesTo = &messaging.RelatesTo{
			RelType:       messaging.RelThread,
			EventID:       threadRoot,
			IsFallingBack: true,
			InReplyTo:     &messaging.InReplyTo{EventID: threadRoot},
		}
	}
	_, err := c.session.SendMessage(ctx, roomID, content)
	return err
}

// RespondAsTeam composes and sends one combined response for a team
// decision. Every member's runner evaluates the same decision; only
// the designated sender acts, so the room sees exactly one reply.
// Predefined teams send through their own session when configured,
// otherwise the designated member's session carries the message.
func (c *Coordinator) RespondAsTeam(ctx context.Context, decision routing.TeamDecision, task Task) error {
	if !c.isDesignatedSender(decision) {
		return nil
	}

	identity := c.teamIdentity(decision)
	answered, err := c.tracker.HasResponded(ctx, identity, task.OriginalID)
	if err != nil {
		return fmt.Errorf("dispatch: team dedup lookup: %w", err)
	}
	if answered {
		return nil
	}

	text, err := c.composeTeamResponse(ctx, decision, task)
	if err != nil {
		return err
	}

	session := c.session
	if decision.PredefinedTeam != "" {
		if teamSession, ok := c.teamSessions[decision.PredefinedTeam]; ok {
			session = teamSession
		}
	}
	outbound, err := session.SendMessage(ctx, task.RoomID, formatContent(outboundContent(task, text)))
	if err != nil {
		return fmt.Errorf("dispatch: send team response: %w", err)
	}
	if err := c.tracker.MarkResponded(ctx, identity, task.OriginalID, outbound); err != nil {
		return fmt.Errorf("dispatch: mark team responded: %w", err)
	}
	return nil
}

// isDesignatedSender reports whether this agent physically sends the
// team's combined message: the lexicographically first participant.
// Agents is sorted by the formation engine.
func (c *Coordinator) isDesignatedSender(decision routing.TeamDecision) bool {
	return len(decision.Agents) > 0 && decision.Agents[0] == c.agent
}

// teamIdentity is the dedup key for a team response.
func (c *Coordinator) teamIdentity(decision routing.TeamDecision) string {
	if decision.PredefinedTeam != "" {
		return decision.PredefinedTeam
	}
	return "team:" + routing.MemberSetKey(decision.Agents)
}

// composeTeamResponse builds the single combined text per mode.
func (c *Coordinator) composeTeamResponse(ctx context.Context, decision routing.TeamDecision, task Task) (string, error) {
	switch decision.Mode {
	case routing.ModeCoordinate:
		// Sequential: each member sees the partials before it.
		var partials []Partial
		for _, member := range decision.Agents {
			req := c.request(task)
			req.Agent = member
			req.Partials = append([]Partial(nil), partials...)
			text, err := c.generator.Generate(ctx, req)
			if err != nil {
				return "", fmt.Errorf("dispatch: coordinate generation for %s: %w", member, err)
			}
			partials = append(partials, Partial{Agent: member, Text: text})
		}
		return joinContributions(partials), nil

	case routing.ModeCollaborate:
		// Independent answers to the same prompt, concatenated.
		partials := make([]Partial, len(decision.Agents))
		var wg sync.WaitGroup
		errs := make([]error, len(decision.Agents))
		for i, member := range decision.Agents {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := c.request(task)
				req.Agent = member
				text, err := c.generator.Generate(ctx, req)
				if err != nil {
					errs[i] = fmt.Errorf("dispatch: collaborate generation for %s: %w", member, err)
					return
				}
				partials[i] = Partial{Agent: member, Text: text}
			}()
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return "", err
			}
		}
		return joinContributions(partials), nil

	case routing.ModeRoute:
		// The lead member owns delegation; its single response is
		// the team's response.
		req := c.request(task)
		req.Agent = decision.Agents[0]
		text, err := c.generator.Generate(ctx, req)
		if err != nil {
			return "", fmt.Errorf("dispatch: route generation: %w", err)
		}
		return text, nil
	}
	return "", fmt.Errorf("dispatch: unknown team mode %v", decision.Mode)
}

func joinContributions(partials []Partial) string {
	var sections []string
	for _, partial := range partials {
		sections = append(sections, "**"+partial.Agent+"**\n\n"+partial.Text)
	}
	return strings.Join(sections, "\n\n---\n\n")
}
