// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g., "#dev:example.com").
//
// Aliases are human-assigned names that resolve to room IDs through
// the homeserver directory. Mindroom uses them in configuration (a
// room allow-list keyed by alias is stable across room upgrades, a
// room ID is not) and resolves them to RoomIDs at startup.
//
// RoomAlias is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	_, _, err := parseRoomAlias(raw)
	if err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// NewRoomAlias constructs an alias (#localpart:server) from its parts.
func NewRoomAlias(localpart string, server ServerName) RoomAlias {
	return RoomAlias{alias: "#" + localpart + ":" + server.name}
}

// String returns the full alias string (e.g., "#dev:example.com").
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the alias name between '#' and ':server'.
func (a RoomAlias) Localpart() string {
	if a.alias == "" {
		panic("RoomAlias.Localpart called on zero value")
	}
	localpart, _, err := parseRoomAlias(a.alias)
	if err != nil {
		// Validated at construction — unreachable.
		panic(fmt.Sprintf("RoomAlias.Localpart: internal error parsing %q: %v", a.alias, err))
	}
	return localpart
}

// MarshalText implements encoding.TextMarshaler.
func (a RoomAlias) MarshalText() ([]byte, error) {
	if a.alias == "" {
		return []byte{}, nil
	}
	return []byte(a.alias), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (a *RoomAlias) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = RoomAlias{}
		return nil
	}
	parsed, err := ParseRoomAlias(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
