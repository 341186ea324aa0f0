// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package mention

import (
	"sort"
	"unicode"

	"github.com/mindroom-ai/mindroom/lib/identity"
)

// Result is the outcome of a mention check for one agent.
type Result struct {
	// Names holds every known actor short name mentioned in the
	// event, sorted.
	Names []string

	// Me reports whether the checking agent itself is mentioned.
	Me bool

	// Any reports whether any known actor is mentioned.
	Any bool
}

// Check combines structured and textual mention detection. body is
// the plain-text message body; structured is the event's explicit
// mention list of raw user IDs; self is the short name of the
// checking agent. Unknown and foreign-domain user IDs in the
// structured list are ignored.
func Check(body string, structured []string, registry *identity.Registry, self string) Result {
	mentioned := make(map[string]bool)

	for _, raw := range structured {
		if id, ok := registry.ResolveName(raw); ok {
			mentioned[id.Name()] = true
		}
	}

	for _, name := range registry.ActorNames() {
		if mentioned[name] {
			continue
		}
		if containsToken(body, name) {
			mentioned[name] = true
		}
	}

	result := Result{
		Names: make([]string, 0, len(mentioned)),
		Me:    mentioned[self],
		Any:   len(mentioned) > 0,
	}
	for name := range mentioned {
		result.Names = append(result.Names, name)
	}
	sort.Strings(result.Names)
	return result
}

// containsToken reports whether body contains "@name" as a
// standalone token: the "@" must not be preceded by a word character
// and the name must not be followed by one. Matching is
// case-sensitive.
func containsToken(body, name string) bool {
	runes := []rune(body)
	nameRunes := []rune(name)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '@' {
			continue
		}
		if i > 0 && wordRune(runes[i-1]) {
			// "decode@code" is an identifier, not a mention.
			continue
		}
		end := i + 1 + len(nameRunes)
		if end > len(runes) {
			continue
		}
		if string(runes[i+1:end]) != name {
			continue
		}
		if end < len(runes) && wordRune(runes[end]) {
			continue
		}
		return true
	}
	return false
}

func wordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
