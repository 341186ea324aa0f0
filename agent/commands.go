// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mindroom-ai/mindroom/lib/identity"
	"github.com/mindroom-ai/mindroom/lib/invite"
	"github.com/mindroom-ai/mindroom/lib/mention"
	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/routing"
)

// defaultInviteTTL is the invitation lifetime when the command gives
// none.
const defaultInviteTTL = time.Hour

const helpText = "Commands: !help, !agents, " +
	"!invite <agent> [ttl], !revoke <agent>, " +
	"!stop [agent], !schedule <when> <prompt>"

// handleCommand executes one parsed command. Room-wide commands are
// answered only by the lead runner so the room sees a single reply;
// !stop is the exception, since only the named agent can cancel its
// own generation.
func (r *Runner) handleCommand(ctx context.Context, cmd mention.Command, meta routing.Meta, sender ref.UserID) {
	if cmd.Type == mention.CommandStop {
		if len(cmd.Args) == 0 || cmd.Args[0] == r.name {
			r.cancelActive(routing.SessionID(meta.RoomID, meta.ThreadRoot))
		}
		return
	}

	if !r.commandLead {
		return
	}

	switch cmd.Type {
	case mention.CommandHelp:
		r.notice(ctx, meta, helpText)

	case mention.CommandAgents:
		r.notice(ctx, meta, r.rosterText())

	case mention.CommandInvite:
		r.handleInvite(ctx, cmd, meta, sender)

	case mention.CommandRevoke:
		r.handleRevoke(ctx, cmd, meta)

	case mention.CommandSchedule:
		r.handleSchedule(ctx, cmd, meta, sender)

	case mention.CommandUnknown:
		r.notice(ctx, meta, fmt.Sprintf("unknown command %q; try !help", cmd.Name))
	}
}

func (r *Runner) handleInvite(ctx context.Context, cmd mention.Command, meta routing.Meta, sender ref.UserID) {
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		r.notice(ctx, meta, "usage: !invite <agent> [ttl]")
		return
	}
	name := cmd.Args[0]
	target, ok := r.registry.Lookup(name)
	if !ok || target.Kind() != identity.KindAgent {
		r.notice(ctx, meta, fmt.Sprintf("no such agent %q; try !agents", name))
		return
	}

	ttl := defaultInviteTTL
	if len(cmd.Args) == 2 {
		parsed, err := time.ParseDuration(cmd.Args[1])
		if err != nil || parsed <= 0 {
			r.notice(ctx, meta, fmt.Sprintf("bad ttl %q; use a duration like 30m or 2h", cmd.Args[1]))
			return
		}
		ttl = parsed
	}

	scope := r.commandScope(meta)
	r.invites.Invite(name, scope, sender, ttl)

	where := "this room"
	if !scope.Thread.IsZero() {
		where = "this thread"
	}
	r.notice(ctx, meta, fmt.Sprintf("invited %s to %s for %s", name, where, ttl))
}

func (r *Runner) handleRevoke(ctx context.Context, cmd mention.Command, meta routing.Meta) {
	if len(cmd.Args) != 1 {
		r.notice(ctx, meta, "usage: !revoke <agent>")
		return
	}
	name := cmd.Args[0]

	// Revoke both the thread grant (when issued in a thread) and
	// the room grant; !revoke means "gone from here".
	removed := r.invites.Revoke(name, r.commandScope(meta))
	if r.invites.Revoke(name, invite.RoomScope(meta.RoomID)) {
		removed = true
	}

	if removed {
		r.notice(ctx, meta, fmt.Sprintf("revoked %s", name))
	} else {
		r.notice(ctx, meta, fmt.Sprintf("%s has no invitation here", name))
	}
}

func (r *Runner) handleSchedule(ctx context.Context, cmd mention.Command, meta routing.Meta, sender ref.UserID) {
	if len(cmd.Args) < 2 {
		r.notice(ctx, meta, "usage: !schedule <when> <prompt>")
		return
	}
	if r.scheduler == nil {
		r.notice(ctx, meta, "scheduling is not available in this deployment")
		return
	}

	when := cmd.Args[0]
	prompt := strings.Join(cmd.Args[1:], " ")
	if err := r.scheduler.Schedule(ctx, sender, when, prompt); err != nil {
		r.logger.Error("scheduling failed", "when", when, "error", err)
		r.notice(ctx, meta, fmt.Sprintf("could not schedule: %v", err))
		return
	}
	r.notice(ctx, meta, fmt.Sprintf("scheduled for %s", when))
}

// commandScope is the invitation scope a command issued at meta
// applies to: the surrounding thread when there is one, else the
// whole room.
func (r *Runner) commandScope(meta routing.Meta) invite.Scope {
	if !meta.ThreadRoot.IsZero() {
		return invite.ThreadScope(meta.RoomID, meta.ThreadRoot)
	}
	return invite.RoomScope(meta.RoomID)
}

func (r *Runner) rosterText() string {
	var b strings.Builder
	b.WriteString("agents: ")
	b.WriteString(strings.Join(r.registry.AgentNames(), ", "))
	if teams := r.teamNames(); len(teams) > 0 {
		b.WriteString("\nteams: ")
		b.WriteString(strings.Join(teams, ", "))
	}
	return b.String()
}

func (r *Runner) teamNames() []string {
	names := make([]string, 0, len(r.teams.Predefined))
	for name := range r.teams.Predefined {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// notice posts a command reply into the room, threaded when the
// command was issued inside a thread.
func (r *Runner) notice(ctx context.Context, meta routing.Meta, text string) {
	if err := r.coordinator.SendNotice(ctx, meta.RoomID, meta.ThreadRoot, text); err != nil {
		r.logger.Debug("command notice failed", "room", meta.RoomID, "error", err)
	}
}
