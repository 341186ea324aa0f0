// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"reflect"
	"testing"
)

func devopsConfig() TeamConfig {
	return TeamConfig{
		Predefined: map[string]TeamDef{
			"devops": {
				Name:    "devops",
				Members: []string{"deploy", "code", "security"},
				Mode:    ModeRoute,
			},
		},
		ModeOverrides: map[string]TeamMode{
			MemberSetKey([]string{"security", "code"}): ModeCollaborate,
		},
	}
}

func TestPredefinedTeamIsAuthoritative(t *testing.T) {
	// Mentioning a predefined team dispatches it as configured, even
	// when other agents are mentioned alongside it.
	decision := DecideTeamFormation(TeamInput{
		MentionedNames: []string{"calculator", "devops"},
	}, devopsConfig())

	if !decision.Form {
		t.Fatal("no team formed")
	}
	if decision.PredefinedTeam != "devops" {
		t.Errorf("predefined team = %q", decision.PredefinedTeam)
	}
	if decision.Mode != ModeRoute {
		t.Errorf("mode = %v, want route", decision.Mode)
	}
	if want := []string{"code", "deploy", "security"}; !reflect.DeepEqual(decision.Agents, want) {
		t.Errorf("agents = %v, want %v", decision.Agents, want)
	}

	if !MentionsPredefinedTeam([]string{"devops"}, devopsConfig()) {
		t.Error("MentionsPredefinedTeam missed a configured team")
	}
	if MentionsPredefinedTeam([]string{"code", "security"}, devopsConfig()) {
		t.Error("MentionsPredefinedTeam matched plain agents")
	}
}

func TestAdHocTeamFromMentions(t *testing.T) {
	// Participant order is deterministic regardless of mention order.
	first := DecideTeamFormation(TeamInput{
		MentionedNames: []string{"security", "code"},
	}, TeamConfig{})
	second := DecideTeamFormation(TeamInput{
		MentionedNames: []string{"code", "security"},
	}, TeamConfig{})

	if !first.Form || !second.Form {
		t.Fatal("no team formed")
	}
	if !reflect.DeepEqual(first.Agents, second.Agents) {
		t.Errorf("order not deterministic: %v vs %v", first.Agents, second.Agents)
	}
	if first.Mode != ModeCoordinate {
		t.Errorf("default mode = %v, want coordinate", first.Mode)
	}

	// A configured override for the exact set changes the mode.
	overridden := DecideTeamFormation(TeamInput{
		MentionedNames: []string{"security", "code"},
	}, devopsConfig())
	if overridden.Mode != ModeCollaborate {
		t.Errorf("overridden mode = %v, want collaborate", overridden.Mode)
	}
}

func TestTeamFromThreadParticipants(t *testing.T) {
	decision := DecideTeamFormation(TeamInput{
		IsThread:     true,
		ThreadAgents: []string{"security", "code"},
	}, TeamConfig{})
	if !decision.Form {
		t.Fatal("no team formed")
	}
	if want := []string{"code", "security"}; !reflect.DeepEqual(decision.Agents, want) {
		t.Errorf("agents = %v, want %v", decision.Agents, want)
	}

	// A single participant is not a team.
	single := DecideTeamFormation(TeamInput{
		IsThread:     true,
		ThreadAgents: []string{"code"},
	}, TeamConfig{})
	if single.Form {
		t.Error("formed a single-member team")
	}
}

func TestRouterSuggestionOnlyInRoomScope(t *testing.T) {
	suggestion := []string{"travel", "calendar"}

	roomScope := DecideTeamFormation(TeamInput{
		RouterSuggestion: suggestion,
	}, TeamConfig{})
	if !roomScope.Form {
		t.Error("room-scope suggestion ignored")
	}

	// Inside a thread the participant rule owns the decision; a
	// stale suggestion never overrides it.
	threadScope := DecideTeamFormation(TeamInput{
		IsThread:         true,
		ThreadAgents:     []string{"code"},
		RouterSuggestion: suggestion,
	}, TeamConfig{})
	if threadScope.Form {
		t.Error("suggestion applied inside a thread")
	}
}

func TestSingleMentionNoTeam(t *testing.T) {
	decision := DecideTeamFormation(TeamInput{
		MentionedNames: []string{"calculator"},
	}, devopsConfig())
	if decision.Form {
		t.Errorf("single mention formed team %v", decision.Agents)
	}
}

func TestExplicitMentionSuppressesDerivedTeams(t *testing.T) {
	// Two agents already speak in the thread, but the message names
	// exactly one other agent. The mention wins: no team, the named
	// agent answers alone.
	thread := DecideTeamFormation(TeamInput{
		MentionedNames: []string{"calculator"},
		IsThread:       true,
		ThreadAgents:   []string{"code", "security"},
	}, devopsConfig())
	if thread.Form {
		t.Errorf("thread participants formed team %v over an explicit mention", thread.Agents)
	}

	room := DecideTeamFormation(TeamInput{
		MentionedNames:   []string{"calculator"},
		RouterSuggestion: []string{"code", "security"},
	}, TeamConfig{})
	if room.Form {
		t.Errorf("router suggestion formed team %v over an explicit mention", room.Agents)
	}
}

func TestParseTeamMode(t *testing.T) {
	tests := []struct {
		raw  string
		want TeamMode
		ok   bool
	}{
		{"coordinate", ModeCoordinate, true},
		{"collaborate", ModeCollaborate, true},
		{"route", ModeRoute, true},
		{"", ModeCoordinate, true},
		{"parallel", ModeCoordinate, false},
	}
	for _, tc := range tests {
		mode, ok := ParseTeamMode(tc.raw)
		if mode != tc.want || ok != tc.ok {
			t.Errorf("ParseTeamMode(%q) = %v, %v", tc.raw, mode, ok)
		}
	}
}

func TestIsDesignatedRouter(t *testing.T) {
	candidates := []string{"code", "calculator", "security"}
	if !IsDesignatedRouter("calculator", candidates) {
		t.Error("lexicographically first agent not designated")
	}
	if IsDesignatedRouter("code", candidates) {
		t.Error("non-first agent designated")
	}
	if IsDesignatedRouter("calculator", nil) {
		t.Error("designated with no candidates")
	}
}
