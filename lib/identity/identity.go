// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"strings"

	"github.com/mindroom-ai/mindroom/lib/ref"
)

// LocalpartPrefix is the reserved Matrix localpart prefix for mindroom
// identities. An account is a mindroom actor if and only if its
// localpart is LocalpartPrefix followed by the actor's short name:
// "@mindroom_calculator:example.com" is the agent "calculator".
//
// The prefix is a namespace reservation on the homeserver, not a
// secret: a foreign server can mint "@mindroom_calculator:attacker.net"
// at will, which is why every resolution to a local name also checks
// the domain.
const LocalpartPrefix = "mindroom_"

// RouterName is the short name of the router identity. The router is
// a non-conversational actor that picks an agent or team when no
// explicit mention exists.
const RouterName = "router"

// Kind classifies a mindroom actor.
type Kind int

const (
	// KindAgent is an individual AI responder.
	KindAgent Kind = iota
	// KindTeam is a composite of agents that answers as one.
	KindTeam
	// KindRouter is the routing identity.
	KindRouter
)

// String returns "agent", "team", or "router".
func (k Kind) String() string {
	switch k {
	case KindAgent:
		return "agent"
	case KindTeam:
		return "team"
	case KindRouter:
		return "router"
	default:
		return "unknown"
	}
}

// Identity is one routable mindroom actor: an individual agent, a team
// composite, or the router. It is an immutable value type constructed
// from configuration at startup (and on config reload).
//
// The full user ID derives deterministically from (name, domain), and
// parsing the user ID back recovers the name — this round trip is the
// anti-spoofing anchor: an identity carrying the right name on the
// wrong domain is a different actor.
type Identity struct {
	name   string
	kind   Kind
	domain ref.ServerName
	userID ref.UserID
}

// FromAgent constructs the identity of an individual agent.
func FromAgent(name string, domain ref.ServerName) (Identity, error) {
	return newIdentity(name, KindAgent, domain)
}

// FromTeam constructs the identity of a predefined team.
func FromTeam(name string, domain ref.ServerName) (Identity, error) {
	return newIdentity(name, KindTeam, domain)
}

// Router constructs the router identity for a domain.
func Router(domain ref.ServerName) (Identity, error) {
	return newIdentity(RouterName, KindRouter, domain)
}

func newIdentity(name string, kind Kind, domain ref.ServerName) (Identity, error) {
	if name == "" {
		return Identity{}, fmt.Errorf("identity: %s name is empty", kind)
	}
	if domain.IsZero() {
		return Identity{}, fmt.Errorf("identity: domain is zero-value for %s %q", kind, name)
	}
	localpart := LocalpartPrefix + name
	if err := ref.ValidateLocalpart(localpart); err != nil {
		return Identity{}, fmt.Errorf("identity: invalid %s name %q: %w", kind, name, err)
	}
	return Identity{
		name:   name,
		kind:   kind,
		domain: domain,
		userID: ref.MatrixUserID(localpart, domain),
	}, nil
}

// Name returns the short logical name (e.g., "calculator").
func (i Identity) Name() string { return i.name }

// Kind returns the actor kind.
func (i Identity) Kind() Kind { return i.kind }

// Domain returns the deployment server name the identity belongs to.
func (i Identity) Domain() ref.ServerName { return i.domain }

// UserID returns the fully-qualified Matrix user ID
// (e.g., "@mindroom_calculator:example.com").
func (i Identity) UserID() ref.UserID { return i.userID }

// IsZero reports whether the Identity is the zero value.
func (i Identity) IsZero() bool { return i.name == "" }

// String returns the full user ID string.
func (i Identity) String() string { return i.userID.String() }

// NameFromLocalpart extracts the short name from a mindroom localpart,
// or returns ok=false if the localpart does not carry the reserved
// prefix. This is purely syntactic: it performs no domain check and no
// membership check against the configured actor set — use
// Registry.ResolveName for the full, spoofing-safe resolution.
func NameFromLocalpart(localpart string) (name string, ok bool) {
	if !strings.HasPrefix(localpart, LocalpartPrefix) {
		return "", false
	}
	name = localpart[len(LocalpartPrefix):]
	if name == "" {
		return "", false
	}
	return name, true
}
