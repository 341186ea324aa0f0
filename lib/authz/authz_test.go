// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"testing"

	"github.com/mindroom-ai/mindroom/lib/identity"
	"github.com/mindroom-ai/mindroom/lib/ref"
)

func newTestChecker(t *testing.T, policy Policy) *Checker {
	t.Helper()
	domain := ref.MustParseServerName("example.com")
	registry, err := identity.NewRegistry(domain, []string{"calculator", "researcher"}, []string{"dev"})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if policy.ServiceAccount.IsZero() {
		policy.ServiceAccount = ref.MustParseUserID("@mindroom:example.com")
	}
	return NewChecker(policy, registry)
}

func TestInternalIdentities(t *testing.T) {
	checker := newTestChecker(t, Policy{})
	internal := []string{
		"@mindroom:example.com",
		"@mindroom_calculator:example.com",
		"@mindroom_dev:example.com",
		"@mindroom_router:example.com",
	}
	for _, raw := range internal {
		if !checker.Internal(ref.MustParseUserID(raw)) {
			t.Errorf("Internal(%s) = false, want true", raw)
		}
	}
	external := []string{
		"@alice:example.com",
		"@mindroom_calculator:attacker.net",
		"@mindroom:attacker.net",
	}
	for _, raw := range external {
		if checker.Internal(ref.MustParseUserID(raw)) {
			t.Errorf("Internal(%s) = true, want false", raw)
		}
	}
}

func TestAuthorizedSenderResolutionOrder(t *testing.T) {
	roomID := ref.MustParseRoomID("!abc:example.com")
	alias := mustAlias(t, "support", "example.com")
	room := RoomKeys{ID: roomID, Key: "support", Alias: alias}

	tests := []struct {
		name   string
		policy Policy
		sender string
		room   RoomKeys
		want   bool
	}{
		{
			name:   "service account always authorized",
			policy: Policy{},
			sender: "@mindroom:example.com",
			room:   room,
			want:   true,
		},
		{
			name:   "internal agent always authorized",
			policy: Policy{},
			sender: "@mindroom_calculator:example.com",
			room:   room,
			want:   true,
		},
		{
			name: "alias map resolves before global allow",
			policy: Policy{
				AliasMap:    map[string]string{"@telegram_12345:bridge.example.com": "@alice:example.com"},
				GlobalAllow: []string{"@alice:example.com"},
			},
			sender: "@telegram_12345:bridge.example.com",
			room:   room,
			want:   true,
		},
		{
			name: "global allow glob",
			policy: Policy{
				GlobalAllow: []string{"@*:corp.example.com"},
			},
			sender: "@carol:corp.example.com",
			room:   room,
			want:   true,
		},
		{
			name: "room ID entry allows",
			policy: Policy{
				RoomAccess: map[string][]string{"!abc:example.com": {"@bob:example.com"}},
			},
			sender: "@bob:example.com",
			room:   room,
			want:   true,
		},
		{
			name: "room ID entry denies even when alias entry would allow",
			policy: Policy{
				RoomAccess: map[string][]string{
					"!abc:example.com":     {"@carol:example.com"},
					"#support:example.com": {"@bob:example.com"},
				},
			},
			sender: "@bob:example.com",
			room:   room,
			want:   false,
		},
		{
			name: "room key consulted when no room ID entry",
			policy: Policy{
				RoomAccess: map[string][]string{"support": {"@bob:example.com"}},
			},
			sender: "@bob:example.com",
			room:   room,
			want:   true,
		},
		{
			name: "alias localpart entry",
			policy: Policy{
				RoomAccess: map[string][]string{"support": {"@bob:example.com"}},
			},
			sender: "@bob:example.com",
			room:   RoomKeys{ID: roomID, Alias: alias},
			want:   true,
		},
		{
			name: "managed room key entry",
			policy: Policy{
				RoomAccess: map[string][]string{"managed/ops": {"@bob:example.com"}},
			},
			sender: "@bob:example.com",
			room:   RoomKeys{ID: roomID, Key: "ops"},
			want:   true,
		},
		{
			name:   "default access true admits unknown sender",
			policy: Policy{DefaultAccess: true},
			sender: "@stranger:elsewhere.org",
			room:   room,
			want:   true,
		},
		{
			name:   "default access false denies unknown sender",
			policy: Policy{DefaultAccess: false},
			sender: "@stranger:elsewhere.org",
			room:   room,
			want:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := newTestChecker(t, tc.policy)
			got := checker.AuthorizedSender(ref.MustParseUserID(tc.sender), tc.room)
			if got != tc.want {
				t.Errorf("AuthorizedSender = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRoomKeyPrecedence(t *testing.T) {
	// "support" appears both as a bare room key and inside the alias
	// localpart; the explicit room key wins because it sorts earlier
	// in the precedence chain, but here they are the same string so
	// the interesting case is room ID shadowing everything.
	policy := Policy{
		RoomAccess: map[string][]string{
			"!abc:example.com":     {},
			"#support:example.com": {"@bob:example.com"},
			"support":              {"@bob:example.com"},
		},
	}
	checker := newTestChecker(t, policy)
	room := RoomKeys{
		ID:    ref.MustParseRoomID("!abc:example.com"),
		Key:   "support",
		Alias: mustAlias(t, "support", "example.com"),
	}
	// The room ID entry is an empty list: nobody allowed, and later
	// keys must not rescue the sender.
	if checker.AuthorizedSender(ref.MustParseUserID("@bob:example.com"), room) {
		t.Error("room ID entry with empty allow list must deny")
	}
}

func TestAllowedForAgentReply(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		sender string
		agent  string
		want   bool
	}{
		{
			name:   "no list configured allows everyone",
			policy: Policy{},
			sender: "@alice:example.com",
			agent:  "calculator",
			want:   true,
		},
		{
			name: "specific entry allows listed sender",
			policy: Policy{
				AgentReplyAllow: map[string][]string{"calculator": {"@alice:example.com"}},
			},
			sender: "@alice:example.com",
			agent:  "calculator",
			want:   true,
		},
		{
			name: "specific entry denies unlisted sender",
			policy: Policy{
				AgentReplyAllow: map[string][]string{"calculator": {"@alice:example.com"}},
			},
			sender: "@bob:example.com",
			agent:  "calculator",
			want:   false,
		},
		{
			name: "wildcard agent entry applies absent specific entry",
			policy: Policy{
				AgentReplyAllow: map[string][]string{"*": {"@alice:example.com"}},
			},
			sender: "@bob:example.com",
			agent:  "researcher",
			want:   false,
		},
		{
			name: "specific entry shadows wildcard agent entry",
			policy: Policy{
				AgentReplyAllow: map[string][]string{
					"*":          {"@alice:example.com"},
					"calculator": {"@bob:example.com"},
				},
			},
			sender: "@alice:example.com",
			agent:  "calculator",
			want:   false,
		},
		{
			name: "wildcard value allows everyone",
			policy: Policy{
				AgentReplyAllow: map[string][]string{"calculator": {"*"}},
			},
			sender: "@stranger:elsewhere.org",
			agent:  "calculator",
			want:   true,
		},
		{
			name: "glob pattern in value",
			policy: Policy{
				AgentReplyAllow: map[string][]string{"calculator": {"@*:corp.example.com"}},
			},
			sender: "@carol:corp.example.com",
			agent:  "calculator",
			want:   true,
		},
		{
			name: "internal identity bypasses the list",
			policy: Policy{
				AgentReplyAllow: map[string][]string{"calculator": {"@alice:example.com"}},
			},
			sender: "@mindroom_router:example.com",
			agent:  "calculator",
			want:   true,
		},
		{
			name: "alias map applies before matching",
			policy: Policy{
				AliasMap:        map[string]string{"@voice_relay99:bridge.example.com": "@alice:example.com"},
				AgentReplyAllow: map[string][]string{"calculator": {"@alice:example.com"}},
			},
			sender: "@voice_relay99:bridge.example.com",
			agent:  "calculator",
			want:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := newTestChecker(t, tc.policy)
			got := checker.AllowedForAgentReply(ref.MustParseUserID(tc.sender), tc.agent)
			if got != tc.want {
				t.Errorf("AllowedForAgentReply = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEffectiveSender(t *testing.T) {
	checker := newTestChecker(t, Policy{})
	router := ref.MustParseUserID("@mindroom_router:example.com")
	alice := ref.MustParseUserID("@alice:example.com")

	// Relay carrying an original sender: checks use the human.
	if got := checker.EffectiveSender(router, "@bob:example.com"); got.String() != "@bob:example.com" {
		t.Errorf("EffectiveSender(relay) = %s, want @bob:example.com", got)
	}
	// Non-internal sender claiming an original sender keeps its own
	// identity; end users cannot impersonate others via the field.
	if got := checker.EffectiveSender(alice, "@bob:example.com"); got != alice {
		t.Errorf("EffectiveSender(external with field) = %s, want %s", got, alice)
	}
	// No field: observed sender stands.
	if got := checker.EffectiveSender(router, ""); got != router {
		t.Errorf("EffectiveSender(no field) = %s, want %s", got, router)
	}
	// Malformed field from a relay: zero sender, denied everywhere.
	got := checker.EffectiveSender(router, "not a user id")
	if !got.IsZero() {
		t.Errorf("EffectiveSender(malformed) = %s, want zero", got)
	}
	if checker.Internal(got) {
		t.Error("zero sender must not be internal")
	}
	restricted := newTestChecker(t, Policy{
		AgentReplyAllow: map[string][]string{"calculator": {"@alice:example.com"}},
	})
	if restricted.AllowedForAgentReply(got, "calculator") {
		t.Error("zero sender must fail a configured reply list")
	}
}

// Relayed voice transcription: the router posts on behalf of @bob.
// The agent's reply list only permits @alice, so the decision must be
// deny even though the router itself is always internal-allowed.
func TestVoiceRelayRespectsOriginalSender(t *testing.T) {
	checker := newTestChecker(t, Policy{
		AgentReplyAllow: map[string][]string{"calculator": {"@alice:example.com"}},
	})
	router := ref.MustParseUserID("@mindroom_router:example.com")

	effective := checker.EffectiveSender(router, "@bob:example.com")
	if checker.AllowedForAgentReply(effective, "calculator") {
		t.Error("relayed @bob must not inherit the router's internal status")
	}

	effective = checker.EffectiveSender(router, "@alice:example.com")
	if !checker.AllowedForAgentReply(effective, "calculator") {
		t.Error("relayed @alice is on the list and must be allowed")
	}
}

func mustAlias(t *testing.T, localpart, server string) ref.RoomAlias {
	t.Helper()
	return ref.NewRoomAlias(localpart, ref.MustParseServerName(server))
}
