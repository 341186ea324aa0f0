// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package mention detects agent mentions and parses bang commands in
// message bodies.
//
// Mentions come from two sources, combined: the structured mention
// list on the event (full user IDs, resolved through the identity
// registry so foreign-domain lookalikes never count) and textual
// @name tokens matched against known short names. Textual matching is
// case-sensitive with word-boundary semantics: "decode@code" does not
// mention the agent "code".
//
// Commands are a "!" prefix followed by a subcommand, optionally
// preceded by an assistant-marker emoji run so voice-transcribed
// commands still parse. A bare "!" is noise; "!help" with no
// arguments is a valid command.
package mention
