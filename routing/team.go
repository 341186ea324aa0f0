// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"sort"
	"strings"
)

// TeamMode selects how a team composes its combined response.
type TeamMode int

const (
	// ModeCoordinate runs agents sequentially, each seeing the
	// partial outputs of those before it.
	ModeCoordinate TeamMode = iota

	// ModeCollaborate runs agents independently on the same prompt
	// and synthesizes the responses.
	ModeCollaborate

	// ModeRoute lets a lead agent delegate; only delegated agents
	// answer.
	ModeRoute
)

func (m TeamMode) String() string {
	switch m {
	case ModeCoordinate:
		return "coordinate"
	case ModeCollaborate:
		return "collaborate"
	case ModeRoute:
		return "route"
	}
	return "unknown"
}

// ParseTeamMode parses a config-file mode string.
func ParseTeamMode(raw string) (TeamMode, bool) {
	switch raw {
	case "coordinate", "":
		return ModeCoordinate, true
	case "collaborate":
		return ModeCollaborate, true
	case "route":
		return ModeRoute, true
	}
	return ModeCoordinate, false
}

// TeamDef is a predefined team from configuration: a named member
// set with a fixed mode. Predefined teams are addressable identities
// and dispatch like a single agent.
type TeamDef struct {
	Name    string
	Members []string
	Mode    TeamMode
}

// TeamConfig is the team-related slice of configuration the formation
// engine consults.
type TeamConfig struct {
	// Predefined teams keyed by team name.
	Predefined map[string]TeamDef

	// ModeOverrides maps a member-set key (MemberSetKey) to the mode
	// an ad hoc team over exactly that set should use.
	ModeOverrides map[string]TeamMode
}

// MemberSetKey is the canonical key for an exact agent set,
// independent of mention order.
func MemberSetKey(agents []string) string {
	sorted := append([]string(nil), agents...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// TeamDecision is the outcome of team formation. When Form is false
// normal single-agent dispatch applies. PredefinedTeam names the
// configured team when one was addressed directly; ad hoc teams leave
// it empty. Agents is always sorted so leader selection (who sends
// the combined message) is reproducible.
type TeamDecision struct {
	Form           bool
	Agents         []string
	Mode           TeamMode
	PredefinedTeam string
}

// TeamInput is the evidence team formation runs on. MentionedNames
// are the local agent and team names the current message explicitly
// mentions; ThreadAgents are the distinct agents already speaking in
// the thread; RouterSuggestion is the opaque multi-agent suggestion
// an external classifier produced for complex room-scope messages,
// nil when absent.
type TeamInput struct {
	MentionedNames   []string
	ThreadAgents     []string
	IsThread         bool
	RouterSuggestion []string
}

// DecideTeamFormation decides whether agents merge into one combined
// response, and in what mode. A directly mentioned predefined team is
// authoritative: it dispatches as configured and suppresses every
// derivation below, including the router's own suggestion.
func DecideTeamFormation(in TeamInput, cfg TeamConfig) TeamDecision {
	for _, name := range in.MentionedNames {
		if team, ok := cfg.Predefined[name]; ok {
			return TeamDecision{
				Form:           true,
				Agents:         sortedCopy(team.Members),
				Mode:           team.Mode,
				PredefinedTeam: team.Name,
			}
		}
	}

	if len(in.MentionedNames) >= 2 {
		return adHocTeam(in.MentionedNames, cfg)
	}

	// The remaining derivations only apply to unaddressed messages.
	// An explicit mention, even of a single agent, names the intended
	// responder; thread participants never override it.
	if len(in.MentionedNames) > 0 {
		return TeamDecision{}
	}

	if in.IsThread && len(in.ThreadAgents) >= 2 {
		return adHocTeam(in.ThreadAgents, cfg)
	}

	// Room scope with a complex multi-domain intent: adopt the
	// external classifier's suggestion. How the suggestion is made is
	// not this engine's business.
	if !in.IsThread && len(in.RouterSuggestion) >= 2 {
		return adHocTeam(in.RouterSuggestion, cfg)
	}

	return TeamDecision{}
}

func adHocTeam(agents []string, cfg TeamConfig) TeamDecision {
	sorted := sortedCopy(agents)
	mode := ModeCoordinate
	if override, ok := cfg.ModeOverrides[MemberSetKey(sorted)]; ok {
		mode = override
	}
	return TeamDecision{Form: true, Agents: sorted, Mode: mode}
}

func sortedCopy(agents []string) []string {
	sorted := append([]string(nil), agents...)
	sort.Strings(sorted)
	return sorted
}

// MentionsPredefinedTeam reports whether any mentioned name is a
// configured team. The router checks this to suppress its own
// suggestion when a team was addressed directly.
func MentionsPredefinedTeam(mentionedNames []string, cfg TeamConfig) bool {
	for _, name := range mentionedNames {
		if _, ok := cfg.Predefined[name]; ok {
			return true
		}
	}
	return false
}

// IsDesignatedRouter reports whether agent is the leader among the
// candidates: the lexicographically first name. Every call site uses
// this one function so "who handles routing here" never drifts
// between components.
func IsDesignatedRouter(agent string, candidates []string) bool {
	if len(candidates) == 0 {
		return false
	}
	leader := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate < leader {
			leader = candidate
		}
	}
	return agent == leader
}
