// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"strings"
	"testing"

	"github.com/mindroom-ai/mindroom/lib/ref"
	"github.com/mindroom-ai/mindroom/messaging"
	"github.com/mindroom-ai/mindroom/routing"
)

func TestTeamOnlyDesignatedSenderActs(t *testing.T) {
	decision := routing.TeamDecision{
		Form:   true,
		Agents: []string{"code", "security"},
		Mode:   routing.ModeCoordinate,
	}
	task := testTask(ref.MustParseEventID("$thread-root"))

	// "security" is not lexicographically first: it stays silent.
	session := &dispatchFakeSession{}
	follower := New(Config{
		Agent:     "security",
		Session:   session,
		Generator: &fakeGenerator{},
		Tracker:   testTracker(t),
	})
	if err := follower.RespondAsTeam(t.Context(), decision, task); err != nil {
		t.Fatalf("follower RespondAsTeam: %v", err)
	}
	if len(session.sentMessages()) != 0 {
		t.Fatal("non-designated member sent a team response")
	}

	// "code" is the designated sender and posts exactly one message.
	leaderSession := &dispatchFakeSession{}
	leader := New(Config{
		Agent:     "code",
		Session:   leaderSession,
		Generator: &fakeGenerator{},
		Tracker:   testTracker(t),
	})
	if err := leader.RespondAsTeam(t.Context(), decision, task); err != nil {
		t.Fatalf("leader RespondAsTeam: %v", err)
	}
	sent := leaderSession.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("team messages = %d, want 1", len(sent))
	}

	// Coordinate mode includes both members' contributions.
	body := sent[0].Content.Body
	if !strings.Contains(body, "answer from code") || !strings.Contains(body, "answer from security") {
		t.Errorf("combined body missing contributions: %q", body)
	}

	// Redelivery of the same event is deduplicated under the team
	// identity.
	if err := leader.RespondAsTeam(t.Context(), decision, task); err != nil {
		t.Fatalf("redelivered RespondAsTeam: %v", err)
	}
	if len(leaderSession.sentMessages()) != 1 {
		t.Error("team response duplicated on redelivery")
	}
}

func TestTeamCoordinatePassesPartials(t *testing.T) {
	generator := &fakeGenerator{}
	session := &dispatchFakeSession{}
	coordinator := New(Config{
		Agent:     "code",
		Session:   session,
		Generator: generator,
		Tracker:   testTracker(t),
	})
	decision := routing.TeamDecision{
		Form:   true,
		Agents: []string{"code", "security"},
		Mode:   routing.ModeCoordinate,
	}

	if err := coordinator.RespondAsTeam(t.Context(), decision, testTask(ref.EventID{})); err != nil {
		t.Fatalf("RespondAsTeam: %v", err)
	}
	if len(generator.requests) != 2 {
		t.Fatalf("generation calls = %d, want 2", len(generator.requests))
	}
	if len(generator.requests[0].Partials) != 0 {
		t.Errorf("first member saw partials: %+v", generator.requests[0].Partials)
	}
	second := generator.requests[1]
	if second.Agent != "security" || len(second.Partials) != 1 || second.Partials[0].Agent != "code" {
		t.Errorf("second member request = %+v", second)
	}
}

func TestPredefinedTeamSendsThroughTeamSession(t *testing.T) {
	agentSession := &dispatchFakeSession{}
	teamSession := &dispatchFakeSession{}
	coordinator := New(Config{
		Agent:        "code",
		Session:      agentSession,
		Generator:    &fakeGenerator{},
		Tracker:      testTracker(t),
		TeamSessions: map[string]messaging.Session{"devops": teamSession},
	})
	decision := routing.TeamDecision{
		Form:           true,
		Agents:         []string{"code", "deploy", "security"},
		Mode:           routing.ModeRoute,
		PredefinedTeam: "devops",
	}

	if err := coordinator.RespondAsTeam(t.Context(), decision, testTask(ref.EventID{})); err != nil {
		t.Fatalf("RespondAsTeam: %v", err)
	}
	if len(agentSession.sentMessages()) != 0 {
		t.Error("predefined team response sent through the agent session")
	}
	sent := teamSession.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("team session messages = %d, want 1", len(sent))
	}
	// Route mode: the lead member's answer is the whole response.
	if sent[0].Content.Body != "answer from code" {
		t.Errorf("route mode body = %q", sent[0].Content.Body)
	}
}

func TestCollaborateJoinsAllMembers(t *testing.T) {
	session := &dispatchFakeSession{}
	coordinator := New(Config{
		Agent:     "code",
		Session:   session,
		Generator: &fakeGenerator{},
		Tracker:   testTracker(t),
	})
	decision := routing.TeamDecision{
		Form:   true,
		Agents: []string{"code", "security"},
		Mode:   routing.ModeCollaborate,
	}

	if err := coordinator.RespondAsTeam(t.Context(), decision, testTask(ref.EventID{})); err != nil {
		t.Fatalf("RespondAsTeam: %v", err)
	}
	body := session.sentMessages()[0].Content.Body
	// Members appear in deterministic order even though they ran in
	// parallel.
	codeIdx := strings.Index(body, "answer from code")
	securityIdx := strings.Index(body, "answer from security")
	if codeIdx < 0 || securityIdx < 0 || codeIdx > securityIdx {
		t.Errorf("combined body order wrong: %q", body)
	}
}
