// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package invite

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mindroom-ai/mindroom/lib/clock"
	"github.com/mindroom-ai/mindroom/lib/ref"
)

// SweepInterval is how often Run removes expired invitations. Expiry
// is also checked on every read, so the sweep only bounds memory; it
// never affects decisions.
const SweepInterval = 60 * time.Second

// Scope identifies where an invitation applies: a whole room, or a
// single thread within it. A zero Thread means room scope.
type Scope struct {
	Room   ref.RoomID
	Thread ref.EventID
}

// RoomScope returns the scope covering every thread in a room.
func RoomScope(room ref.RoomID) Scope {
	return Scope{Room: room}
}

// ThreadScope returns the scope covering one thread.
func ThreadScope(room ref.RoomID, thread ref.EventID) Scope {
	return Scope{Room: room, Thread: thread}
}

// Invitation is one pending grant.
type Invitation struct {
	Agent     string
	Scope     Scope
	InvitedBy ref.UserID

	// ExpiresAt is the instant the grant lapses. Zero means no
	// expiry; the grant stands until revoked.
	ExpiresAt time.Time
}

type key struct {
	agent string
	scope Scope
}

// Table is the in-process invitation store shared by every agent in
// the process. Safe for concurrent use.
type Table struct {
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	entries map[key]Invitation
}

// NewTable returns an empty table. A nil clk uses the real clock; a
// nil logger discards.
func NewTable(clk clock.Clock, logger *slog.Logger) *Table {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Table{
		clock:   clk,
		logger:  logger,
		entries: make(map[key]Invitation),
	}
}

// Invite records a grant, replacing any existing grant for the same
// agent and scope. A zero ttl means no expiry.
func (t *Table) Invite(agent string, scope Scope, invitedBy ref.UserID, ttl time.Duration) Invitation {
	inv := Invitation{Agent: agent, Scope: scope, InvitedBy: invitedBy}
	if ttl > 0 {
		inv.ExpiresAt = t.clock.Now().Add(ttl)
	}
	t.mu.Lock()
	t.entries[key{agent, scope}] = inv
	t.mu.Unlock()
	t.logger.Info("invitation recorded",
		"agent", agent,
		"room", scope.Room,
		"thread", scope.Thread,
		"invited_by", invitedBy,
		"expires_at", inv.ExpiresAt,
	)
	return inv
}

// Revoke removes the grant for (agent, scope). Returns whether a
// grant existed.
func (t *Table) Revoke(agent string, scope Scope) bool {
	t.mu.Lock()
	_, existed := t.entries[key{agent, scope}]
	delete(t.entries, key{agent, scope})
	t.mu.Unlock()
	if existed {
		t.logger.Info("invitation revoked", "agent", agent, "room", scope.Room, "thread", scope.Thread)
	}
	return existed
}

// RevokeAll removes every grant for agent in the given room, thread
// scopes included. Returns how many grants were removed.
func (t *Table) RevokeAll(agent string, room ref.RoomID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k := range t.entries {
		if k.agent == agent && k.scope.Room == room {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Invited reports whether agent holds a live grant for the thread.
// Both the exact thread scope and the enclosing room scope are
// consulted. Expired grants never count, regardless of sweep timing.
func (t *Table) Invited(agent string, room ref.RoomID, thread ref.EventID) bool {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if !thread.IsZero() {
		if inv, ok := t.entries[key{agent, ThreadScope(room, thread)}]; ok && live(inv, now) {
			return true
		}
	}
	inv, ok := t.entries[key{agent, RoomScope(room)}]
	return ok && live(inv, now)
}

// Pending returns the live grants for an agent, for command output.
func (t *Table) Pending(agent string) []Invitation {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Invitation
	for k, inv := range t.entries {
		if k.agent == agent && live(inv, now) {
			out = append(out, inv)
		}
	}
	return out
}

// Sweep removes expired grants and returns how many were removed.
func (t *Table) Sweep() int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k, inv := range t.entries {
		if !live(inv, now) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired grants every SweepInterval until ctx is done.
func (t *Table) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := t.Sweep(); removed > 0 {
				t.logger.Debug("expired invitations swept", "removed", removed)
			}
		}
	}
}

func live(inv Invitation, now time.Time) bool {
	return inv.ExpiresAt.IsZero() || now.Before(inv.ExpiresAt)
}
