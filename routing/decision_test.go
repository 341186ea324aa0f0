// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"testing"

	"github.com/mindroom-ai/mindroom/lib/ref"
)

func TestEchoSuppression(t *testing.T) {
	// Own messages never draw a response, even when self-mentioned.
	decision := Decide(DecisionInput{
		AgentName:     "calculator",
		SenderIsSelf:  true,
		SenderIsActor: true,
		SelfMentioned: true,
		IsThread:      true,
	})
	if decision.Action != Ignore {
		t.Errorf("own message: action = %v, want ignore", decision.Action)
	}

	// Another agent's intermediate streaming edit, even one that
	// mentions this agent, is suppressed. Only a final non-edit
	// message from that agent can trigger a response.
	edit := Decide(DecisionInput{
		AgentName:     "calculator",
		SenderIsActor: true,
		IsEdit:        true,
		SelfMentioned: true,
	})
	if edit.Action != Ignore {
		t.Errorf("agent edit: action = %v, want ignore", edit.Action)
	}

	final := Decide(DecisionInput{
		AgentName:     "calculator",
		SenderIsActor: true,
		SelfMentioned: true,
	})
	if final.Action != Respond {
		t.Errorf("agent final message with mention: action = %v, want respond", final.Action)
	}
}

func TestDecisionRules(t *testing.T) {
	tests := []struct {
		name  string
		input DecisionInput
		want  Action
	}{
		{
			name: "room scope mention responds",
			input: DecisionInput{
				AgentName:     "calculator",
				SelfMentioned: true,
			},
			want: Respond,
		},
		{
			name: "room scope unaddressed is silent",
			input: DecisionInput{
				AgentName: "calculator",
			},
			want: Ignore,
		},
		{
			name: "room scope mention of another agent is silent",
			input: DecisionInput{
				AgentName:     "calculator",
				SelfMentioned: false,
			},
			want: Ignore,
		},
		{
			name: "invited agent claims empty thread",
			input: DecisionInput{
				AgentName: "research",
				IsThread:  true,
				Invited:   true,
			},
			want: Respond,
		},
		{
			name: "uninvited agent ignores empty thread",
			input: DecisionInput{
				AgentName: "research",
				IsThread:  true,
			},
			want: Ignore,
		},
		{
			name: "sole participant continues without re-mention",
			input: DecisionInput{
				AgentName:    "calculator",
				IsThread:     true,
				ThreadAgents: []string{"calculator"},
			},
			want: Respond,
		},
		{
			name: "sole participant is someone else",
			input: DecisionInput{
				AgentName:    "calculator",
				IsThread:     true,
				ThreadAgents: []string{"security"},
			},
			want: Ignore,
		},
		{
			name: "multi-agent thread defers to team",
			input: DecisionInput{
				AgentName:    "code",
				IsThread:     true,
				ThreadAgents: []string{"code", "security"},
			},
			want: DeferToTeam,
		},
		{
			name: "multi-agent thread with explicit mention responds",
			input: DecisionInput{
				AgentName:     "code",
				IsThread:      true,
				ThreadAgents:  []string{"code", "security"},
				SelfMentioned: true,
			},
			want: Respond,
		},
		{
			name: "mention outranks another agent's invitation",
			input: DecisionInput{
				AgentName:     "calculator",
				IsThread:      true,
				SelfMentioned: true,
			},
			want: Respond,
		},
		{
			name: "user edit introducing a mention responds",
			input: DecisionInput{
				AgentName:       "calculator",
				IsEdit:          true,
				EditAddsMention: true,
				SelfMentioned:   true,
			},
			want: Respond,
		},
		{
			name: "user edit with pre-existing mention is silent",
			input: DecisionInput{
				AgentName:     "calculator",
				IsEdit:        true,
				SelfMentioned: true,
			},
			want: Ignore,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Decide(tc.input)
			if decision.Action != tc.want {
				t.Errorf("action = %v (%s), want %v", decision.Action, decision.Reason, tc.want)
			}
		})
	}
}

func TestDedupLayering(t *testing.T) {
	prior := ref.MustParseEventID("$prior-reply")

	// A non-edit event whose original was already answered is
	// suppressed even when every rule says respond.
	duplicate := Decide(DecisionInput{
		AgentName:        "calculator",
		SelfMentioned:    true,
		OriginalAnswered: true,
		PriorOutbound:    prior,
	})
	if duplicate.Action != Ignore {
		t.Errorf("answered original: action = %v, want ignore", duplicate.Action)
	}

	// An edit of an answered original updates the existing reply.
	edit := Decide(DecisionInput{
		AgentName:        "calculator",
		IsEdit:           true,
		EditAddsMention:  true,
		SelfMentioned:    true,
		OriginalAnswered: true,
		PriorOutbound:    prior,
	})
	if edit.Action != EditExisting {
		t.Fatalf("edit of answered original: action = %v, want edit-existing", edit.Action)
	}
	if edit.PriorOutbound != prior {
		t.Errorf("prior outbound = %v, want %v", edit.PriorOutbound, prior)
	}

	// Dedup never turns a negative decision positive.
	silent := Decide(DecisionInput{
		AgentName:        "calculator",
		IsThread:         true,
		ThreadAgents:     []string{"security"},
		OriginalAnswered: true,
		PriorOutbound:    prior,
	})
	if silent.Action != Ignore {
		t.Errorf("negative decision: action = %v, want ignore", silent.Action)
	}
}
