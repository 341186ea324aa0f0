// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseUserID(t *testing.T) {
	valid := []struct {
		raw       string
		localpart string
		server    string
	}{
		{"@alice:example.com", "alice", "example.com"},
		{"@mindroom_code:chat.example.org", "mindroom_code", "chat.example.org"},
		{"@bob:example.org:8448", "bob", "example.org:8448"},
	}
	for _, tc := range valid {
		u, err := ParseUserID(tc.raw)
		if err != nil {
			t.Fatalf("ParseUserID(%q): %v", tc.raw, err)
		}
		if u.Localpart() != tc.localpart {
			t.Errorf("Localpart(%q) = %q, want %q", tc.raw, u.Localpart(), tc.localpart)
		}
		if u.Server() != tc.server {
			t.Errorf("Server(%q) = %q, want %q", tc.raw, u.Server(), tc.server)
		}
		if u.String() != tc.raw {
			t.Errorf("String(%q) = %q", tc.raw, u.String())
		}
	}

	invalid := []string{"", "alice", "@alice", "@:example.com", "@alice:", "#alice:example.com"}
	for _, raw := range invalid {
		if _, err := ParseUserID(raw); err == nil {
			t.Errorf("ParseUserID(%q): expected error", raw)
		}
	}
}

func TestParseRoomID(t *testing.T) {
	r, err := ParseRoomID("!room:example.com")
	if err != nil {
		t.Fatalf("ParseRoomID: %v", err)
	}
	if r.IsZero() {
		t.Error("parsed room ID reports IsZero")
	}

	invalid := []string{"", "room", "!room", "!:example.com", "!room:"}
	for _, raw := range invalid {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q): expected error", raw)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$abc123"); err != nil {
		t.Fatalf("ParseEventID: %v", err)
	}
	for _, raw := range []string{"", "$", "abc"} {
		if _, err := ParseEventID(raw); err == nil {
			t.Errorf("ParseEventID(%q): expected error", raw)
		}
	}
}

func TestParseRoomAlias(t *testing.T) {
	a, err := ParseRoomAlias("#general:example.com")
	if err != nil {
		t.Fatalf("ParseRoomAlias: %v", err)
	}
	if a.Localpart() != "general" {
		t.Errorf("Localpart = %q, want %q", a.Localpart(), "general")
	}
	if _, err := ParseRoomAlias("@general:example.com"); err == nil {
		t.Error("ParseRoomAlias with @ sigil: expected error")
	}
}

func TestValidateLocalpart(t *testing.T) {
	for _, localpart := range []string{"alice", "mindroom_code", "a.b-c_d=e"} {
		if err := ValidateLocalpart(localpart); err != nil {
			t.Errorf("ValidateLocalpart(%q): %v", localpart, err)
		}
	}
	for _, localpart := range []string{"", "Alice", "bob smith", "café"} {
		if err := ValidateLocalpart(localpart); err == nil {
			t.Errorf("ValidateLocalpart(%q): expected error", localpart)
		}
	}
}

func TestUserIDJSONRoundTrip(t *testing.T) {
	original := MustParseUserID("@mindroom_calculator:example.com")
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded UserID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip: got %v, want %v", decoded, original)
	}

	var bad UserID
	if err := json.Unmarshal([]byte(`"not-a-user-id"`), &bad); err == nil {
		t.Error("unmarshal of malformed user ID: expected error")
	}
}

func TestRoomIDMapKey(t *testing.T) {
	// /sync responses arrive keyed by room ID; UnmarshalText must
	// validate map keys during decoding.
	var m map[RoomID]int
	if err := json.Unmarshal([]byte(`{"!a:example.com": 1}`), &m); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if len(m) != 1 {
		t.Fatalf("map has %d entries, want 1", len(m))
	}
}
