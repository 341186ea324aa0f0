// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity defines mindroom's actor model: typed identities
// for agents, teams, and the router, plus the registry that resolves
// raw Matrix user IDs to configured actors.
//
// Every mindroom actor occupies a Matrix account whose localpart is
// the reserved prefix "mindroom_" followed by the actor's short name.
// Resolution from a raw user ID back to a short name is gated on three
// checks — prefix, configured-set membership, and domain — and the
// domain check is the one that matters for security: names are only
// unique per server, so "@mindroom_code:attacker.net" must never be
// taken for the local agent "code". See Registry.ResolveName.
//
// The package also provides the glob pattern matcher used by
// authorization allow-lists (see MatchPattern).
package identity
