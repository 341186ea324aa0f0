// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import "github.com/mindroom-ai/mindroom/lib/ref"

// Action is the outcome of a per-agent decision.
type Action int

const (
	// Ignore means stay silent.
	Ignore Action = iota

	// Respond means generate and send a fresh response.
	Respond

	// EditExisting means the inbound is an edit of an already
	// answered message: update the prior outbound event in place
	// instead of sending a new one.
	EditExisting

	// DeferToTeam means this agent declines individually and the
	// team formation engine decides instead.
	DeferToTeam
)

func (a Action) String() string {
	switch a {
	case Ignore:
		return "ignore"
	case Respond:
		return "respond"
	case EditExisting:
		return "edit-existing"
	case DeferToTeam:
		return "defer-to-team"
	}
	return "unknown"
}

// Decision is the result of evaluating one (agent, event) pair.
// PriorOutbound is set only for EditExisting.
type Decision struct {
	Action        Action
	PriorOutbound ref.EventID

	// Reason names the rule that fired, for logs.
	Reason string
}

// DecisionInput is the snapshot a decision is computed from. The
// caller (the agent runner) assembles it from the parsed event, the
// mention check, the resolved thread context, the invitation table,
// and the dedup tracker. Decide itself performs no I/O.
type DecisionInput struct {
	AgentName string

	// Sender classification for echo suppression. SenderIsSelf means
	// the event came from this agent's own identity; SenderIsActor
	// means it came from any agent, team, or router identity.
	SenderIsSelf  bool
	SenderIsActor bool

	// IsEdit marks superseding events. EditAddsMention is true only
	// for a user-originated edit that introduces a mention of this
	// agent absent from the prior version.
	IsEdit          bool
	EditAddsMention bool

	SelfMentioned bool

	IsThread bool

	// ThreadAgents are the distinct agent names that have already
	// spoken in the thread, from AgentParticipants.
	ThreadAgents []string

	// Invited reports a live (unexpired) invitation covering this
	// thread or room for this agent. Invitations override room
	// configuration: the runner feeds invited rooms into the event
	// stream even when the agent is not configured for them.
	Invited bool

	// OriginalAnswered and PriorOutbound come from the dedup
	// tracker, keyed by the original (un-superseded) event ID.
	OriginalAnswered bool
	PriorOutbound    ref.EventID
}

// Decide evaluates the response rules for one agent against one
// event. Rules are ordered and the first match wins; the dedup layer
// then caps any positive outcome so an already answered original is
// never answered twice.
func Decide(in DecisionInput) Decision {
	decision := decideRules(in)
	if decision.Action != Respond {
		return decision
	}

	// Already answered: an edit of the answered original updates the
	// existing response in place, anything else is suppressed.
	if in.OriginalAnswered {
		if in.IsEdit {
			return Decision{
				Action:        EditExisting,
				PriorOutbound: in.PriorOutbound,
				Reason:        "edit of answered message",
			}
		}
		return Decision{Action: Ignore, Reason: "duplicate suppressed"}
	}
	return decision
}

func decideRules(in DecisionInput) Decision {
	// Echo suppression is unconditional and overrides mention
	// detection: never react to own messages, and never to another
	// actor's edits (streaming agents emit a stream of intermediate
	// edits; reacting to them loops).
	if in.SenderIsSelf {
		return Decision{Action: Ignore, Reason: "own message"}
	}
	if in.SenderIsActor && in.IsEdit {
		return Decision{Action: Ignore, Reason: "agent edit"}
	}

	// An explicit mention beats every other consideration, including
	// invitations held by other agents. Edits only qualify when the
	// mention is newly introduced by a human.
	if in.SelfMentioned {
		if !in.IsEdit {
			return Decision{Action: Respond, Reason: "mentioned"}
		}
		if in.EditAddsMention {
			return Decision{Action: Respond, Reason: "edit introduced mention"}
		}
		return Decision{Action: Ignore, Reason: "mention predates edit"}
	}

	// Room-scope chatter without a mention never draws a response.
	if !in.IsThread {
		return Decision{Action: Ignore, Reason: "unaddressed room message"}
	}

	// A live invitation gives the agent ownership of a thread no
	// agent has claimed, even in rooms it is not configured for.
	// Claiming the empty thread immediately avoids racing the router.
	if len(in.ThreadAgents) == 0 && in.Invited {
		return Decision{Action: Respond, Reason: "invited to unclaimed thread"}
	}

	// Single-agent threads run as a conversation: once this agent is
	// the sole participant, follow-ups need no re-mention. This also
	// covers an invited agent after its first reply, even once the
	// invitation itself has expired.
	if len(in.ThreadAgents) == 1 && in.ThreadAgents[0] == in.AgentName {
		return Decision{Action: Respond, Reason: "continuing own thread"}
	}

	// Multiple agents in the thread and no mention: individual
	// responses would collide, so everyone yields to team formation.
	if len(in.ThreadAgents) > 1 {
		return Decision{Action: DeferToTeam, Reason: "multi-agent thread"}
	}

	return Decision{Action: Ignore, Reason: "no rule matched"}
}
