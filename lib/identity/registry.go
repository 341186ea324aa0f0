// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mindroom-ai/mindroom/lib/ref"
)

// Registry holds the configured actor set for one deployment: every
// agent, team, and the router, all on the deployment's own domain.
// It answers the two questions the routing engine asks constantly:
// "is this sender one of ours?" and "which actor is it?".
//
// Parse results are cached keyed on the raw user ID string. The cache
// is owned by the Registry value (not a package global) so tests get
// isolated registries for free. A Registry is immutable after
// construction; config reload builds a new one.
type Registry struct {
	domain ref.ServerName
	actors map[string]Identity // short name → identity

	mu    sync.RWMutex
	cache map[string]resolution // raw user ID → cached resolution
}

// resolution is a cached outcome of ResolveName for one raw user ID.
// A negative outcome (ok=false) is cached too: foreign-domain agent
// look-alikes arrive repeatedly in busy rooms and re-parsing them per
// event is wasted work.
type resolution struct {
	identity Identity
	ok       bool
}

// NewRegistry builds a Registry for a domain from the configured agent
// names and team names. The router identity is always present.
func NewRegistry(domain ref.ServerName, agentNames, teamNames []string) (*Registry, error) {
	if domain.IsZero() {
		return nil, fmt.Errorf("identity: registry domain is zero-value")
	}

	actors := make(map[string]Identity, len(agentNames)+len(teamNames)+1)

	for _, name := range agentNames {
		id, err := FromAgent(name, domain)
		if err != nil {
			return nil, err
		}
		if _, exists := actors[name]; exists {
			return nil, fmt.Errorf("identity: duplicate actor name %q", name)
		}
		actors[name] = id
	}
	for _, name := range teamNames {
		id, err := FromTeam(name, domain)
		if err != nil {
			return nil, err
		}
		if _, exists := actors[name]; exists {
			return nil, fmt.Errorf("identity: duplicate actor name %q", name)
		}
		actors[name] = id
	}

	router, err := Router(domain)
	if err != nil {
		return nil, err
	}
	if _, exists := actors[RouterName]; exists {
		return nil, fmt.Errorf("identity: actor name %q collides with the router", RouterName)
	}
	actors[RouterName] = router

	return &Registry{
		domain: domain,
		actors: actors,
		cache:  make(map[string]resolution),
	}, nil
}

// Domain returns the deployment's server name.
func (r *Registry) Domain() ref.ServerName { return r.domain }

// Lookup returns the identity for a configured short name.
func (r *Registry) Lookup(name string) (Identity, bool) {
	id, ok := r.actors[name]
	return id, ok
}

// AgentNames returns the names of all individual agents (not teams,
// not the router), sorted lexicographically.
func (r *Registry) AgentNames() []string {
	var names []string
	for name, id := range r.actors {
		if id.Kind() == KindAgent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ActorNames returns the names of all actors (agents, teams, router),
// sorted lexicographically.
func (r *Registry) ActorNames() []string {
	names := make([]string, 0, len(r.actors))
	for name := range r.actors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveName resolves a raw Matrix user ID to a configured actor.
// It returns ok=false — never an error — when the sender is not a
// local mindroom actor, which covers four distinct inputs:
//
//   - a malformed user ID string
//   - a user ID without the reserved localpart prefix (a human)
//   - a prefixed user ID whose name is not in the configured set
//   - a prefixed user ID on a FOREIGN domain, even when the name
//     matches a local actor exactly
//
// The last case is the anti-spoofing guarantee: mentions of and
// messages from "@mindroom_code:attacker.net" must never be attributed
// to the local agent "code".
func (r *Registry) ResolveName(rawUserID string) (Identity, bool) {
	r.mu.RLock()
	cached, hit := r.cache[rawUserID]
	r.mu.RUnlock()
	if hit {
		return cached.identity, cached.ok
	}

	identity, ok := r.resolveUncached(rawUserID)

	r.mu.Lock()
	r.cache[rawUserID] = resolution{identity: identity, ok: ok}
	r.mu.Unlock()

	return identity, ok
}

func (r *Registry) resolveUncached(rawUserID string) (Identity, bool) {
	userID, err := ref.ParseUserID(rawUserID)
	if err != nil {
		return Identity{}, false
	}
	if userID.Server() != r.domain.String() {
		return Identity{}, false
	}
	name, ok := NameFromLocalpart(userID.Localpart())
	if !ok {
		return Identity{}, false
	}
	id, ok := r.actors[name]
	if !ok {
		return Identity{}, false
	}
	return id, true
}

// IsActor reports whether a raw user ID is any configured local actor
// (agent, team, or router). Humans and foreign-domain look-alikes are
// not actors.
func (r *Registry) IsActor(rawUserID string) bool {
	_, ok := r.ResolveName(rawUserID)
	return ok
}
