// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"github.com/mindroom-ai/mindroom/lib/identity"
	"github.com/mindroom-ai/mindroom/lib/ref"
)

// Policy is the static authorization configuration. All slices hold
// glob patterns matched against full Matrix user IDs with
// identity.MatchPattern; a pattern that is a plain user ID matches
// only itself.
type Policy struct {
	// ServiceAccount is the deployment's own Matrix account. It is
	// always authorized and always bypasses per-agent reply lists.
	ServiceAccount ref.UserID

	// AliasMap resolves bridged or relayed sender IDs to canonical
	// user IDs before any list matching. Keys and values are full
	// Matrix user IDs.
	AliasMap map[string]string

	// GlobalAllow lists senders authorized in every room.
	GlobalAllow []string

	// RoomAccess maps a room lookup key to the senders allowed in
	// that room. Keys are tried in the precedence order documented
	// on RoomKeys; the first key present decides, even when its
	// list denies the sender.
	RoomAccess map[string][]string

	// AgentReplyAllow restricts which senders a given agent replies
	// to. The key "*" applies to every agent that has no specific
	// entry; the value "*" allows everyone. An agent with no
	// applicable entry replies to any authorized sender.
	AgentReplyAllow map[string][]string

	// DefaultAccess decides rooms with no matching RoomAccess key.
	DefaultAccess bool
}

// RoomKeys carries every lookup key under which a room's access list
// may be registered. Precedence, first present wins: the room ID, the
// configured room key, the canonical alias, the alias localpart, and
// the derived managed-room key.
type RoomKeys struct {
	ID    ref.RoomID
	Key   string
	Alias ref.RoomAlias
}

// ManagedRoomKey derives the access-map key for a room the deployment
// created and manages itself.
func ManagedRoomKey(roomKey string) string {
	if roomKey == "" {
		return ""
	}
	return "managed/" + roomKey
}

// Checker evaluates a Policy against a registry of internal actor
// identities. Checkers are cheap and safe for concurrent use; the
// Policy is treated as immutable after construction.
type Checker struct {
	policy   Policy
	registry *identity.Registry
}

// NewChecker returns a Checker over the given policy and registry.
func NewChecker(policy Policy, registry *identity.Registry) *Checker {
	return &Checker{policy: policy, registry: registry}
}

// Internal reports whether sender is one of the deployment's own
// identities: the service account or any agent, team, or router
// account on the local domain.
func (c *Checker) Internal(sender ref.UserID) bool {
	if !c.policy.ServiceAccount.IsZero() && sender == c.policy.ServiceAccount {
		return true
	}
	return c.registry.IsActor(sender.String())
}

// Canonical resolves sender through the alias map. A sender with no
// alias entry, or whose entry is malformed, resolves to itself.
func (c *Checker) Canonical(sender ref.UserID) ref.UserID {
	mapped, ok := c.policy.AliasMap[sender.String()]
	if !ok {
		return sender
	}
	canonical, err := ref.ParseUserID(mapped)
	if err != nil {
		return sender
	}
	return canonical
}

// AuthorizedSender reports whether sender may address the deployment
// in the given room.
//
// Resolution order:
//  1. The service account is always authorized.
//  2. Internal agent, team, and router identities are authorized.
//  3. The sender is resolved through the alias map.
//  4. A global-allow match authorizes in every room.
//  5. The room's access list, found under the first RoomKeys key
//     present in the policy, decides.
//  6. With no room entry, the default-access flag decides.
func (c *Checker) AuthorizedSender(sender ref.UserID, room RoomKeys) bool {
	if c.Internal(sender) {
		return true
	}
	canonical := c.Canonical(sender).String()
	if identity.MatchAnyPattern(c.policy.GlobalAllow, canonical) {
		return true
	}
	for _, key := range room.lookupKeys() {
		allowed, ok := c.policy.RoomAccess[key]
		if !ok {
			continue
		}
		// First present key decides; later keys are not consulted
		// even on deny.
		return identity.MatchAnyPattern(allowed, canonical)
	}
	return c.policy.DefaultAccess
}

// lookupKeys returns the non-empty access-map keys in precedence
// order.
func (k RoomKeys) lookupKeys() []string {
	keys := make([]string, 0, 5)
	if !k.ID.IsZero() {
		keys = append(keys, k.ID.String())
	}
	if k.Key != "" {
		keys = append(keys, k.Key)
	}
	if !k.Alias.IsZero() {
		keys = append(keys, k.Alias.String(), k.Alias.Localpart())
	}
	if managed := ManagedRoomKey(k.Key); managed != "" {
		keys = append(keys, managed)
	}
	return keys
}

// AllowedForAgentReply reports whether the named agent replies to
// sender. Internal identities always pass; they are not end users
// being filtered. The sender is resolved through the alias map before
// matching.
func (c *Checker) AllowedForAgentReply(sender ref.UserID, agentName string) bool {
	if c.Internal(sender) {
		return true
	}
	allowed, ok := c.policy.AgentReplyAllow[agentName]
	if !ok {
		allowed, ok = c.policy.AgentReplyAllow["*"]
	}
	if !ok {
		// No list configured for this agent: no restriction.
		return true
	}
	canonical := c.Canonical(sender).String()
	for _, pattern := range allowed {
		if pattern == "*" {
			return true
		}
		if identity.MatchPattern(pattern, canonical) {
			return true
		}
	}
	return false
}

// EffectiveSender returns the identity permission checks must use for
// an event. When an internal identity relays a message on behalf of a
// human and the event carries the original sender, checks use that
// embedded sender so relayed messages do not inherit the relay's
// internal status. A malformed original-sender field yields a zero
// UserID, which matches no allow list and is never internal.
func (c *Checker) EffectiveSender(observed ref.UserID, originalSender string) ref.UserID {
	if originalSender == "" || !c.Internal(observed) {
		return observed
	}
	original, err := ref.ParseUserID(originalSender)
	if err != nil {
		return ref.UserID{}
	}
	return original
}
