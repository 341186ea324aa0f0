// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package mention

import (
	"strings"
	"unicode"
)

// CommandPrefix starts every command body.
const CommandPrefix = "!"

// CommandType classifies a parsed command.
type CommandType int

const (
	// CommandHelp lists available commands.
	CommandHelp CommandType = iota
	// CommandInvite grants an agent access to the current room or
	// thread: "!invite <agent> [ttl]".
	CommandInvite
	// CommandRevoke removes an invitation: "!revoke <agent>".
	CommandRevoke
	// CommandStop cancels the agent's in-flight streaming response
	// in the current scope.
	CommandStop
	// CommandSchedule asks an agent to act later:
	// "!schedule <when> <prompt...>".
	CommandSchedule
	// CommandAgents lists the configured agents and teams.
	CommandAgents
	// CommandUnknown is a command-shaped body with an unrecognized
	// subcommand. The caller answers with a short help message.
	CommandUnknown
)

// String returns the subcommand keyword.
func (t CommandType) String() string {
	switch t {
	case CommandHelp:
		return "help"
	case CommandInvite:
		return "invite"
	case CommandRevoke:
		return "revoke"
	case CommandStop:
		return "stop"
	case CommandSchedule:
		return "schedule"
	case CommandAgents:
		return "agents"
	default:
		return "unknown"
	}
}

// Command is one parsed command line.
type Command struct {
	Type CommandType
	// Name is the raw subcommand word as typed, preserved for
	// error messages on CommandUnknown.
	Name string
	// Args are the whitespace-split arguments after the subcommand.
	Args []string
}

// ParseCommand parses body as a command. ok is false when the body is
// not command-shaped at all: no prefix, or a bare prefix with nothing
// after it. A recognized subcommand with no arguments is still a
// valid command; argument validation is the dispatcher's job.
func ParseCommand(body string) (Command, bool) {
	rest, ok := stripMarker(body)
	if !ok {
		return Command{}, false
	}
	rest = strings.TrimPrefix(rest, CommandPrefix)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		// A bare "!" is noise, not a command.
		return Command{}, false
	}

	cmd := Command{Name: fields[0], Args: fields[1:]}
	switch fields[0] {
	case "help":
		cmd.Type = CommandHelp
	case "invite":
		cmd.Type = CommandInvite
	case "revoke":
		cmd.Type = CommandRevoke
	case "stop":
		cmd.Type = CommandStop
	case "schedule":
		cmd.Type = CommandSchedule
	case "agents":
		cmd.Type = CommandAgents
	default:
		cmd.Type = CommandUnknown
	}
	return cmd, true
}

// stripMarker removes a leading assistant-marker emoji run (with
// surrounding whitespace) and reports whether the remainder starts
// with the command prefix. Voice transcription prepends a marker like
// "🤖" before the spoken command.
func stripMarker(body string) (string, bool) {
	runes := []rune(strings.TrimLeftFunc(body, unicode.IsSpace))
	i := 0
	for i < len(runes) && markerRune(runes[i]) {
		i++
	}
	rest := strings.TrimLeftFunc(string(runes[i:]), unicode.IsSpace)
	return rest, strings.HasPrefix(rest, CommandPrefix)
}

// markerRune reports whether r belongs to an emoji marker sequence:
// pictographs plus the joiners and variation selectors that compose
// them.
func markerRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, incl. 🤖
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		return true
	case r == 0x200D || r == 0xFE0F: // ZWJ, variation selector
		return true
	}
	return false
}
