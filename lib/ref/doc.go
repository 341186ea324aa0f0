// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable references for Matrix
// identifiers: user IDs, room IDs, room aliases, event IDs, and server
// names.
//
// All constructors validate their inputs and return errors for
// malformed strings. Once constructed, a ref is immutable — accessor
// methods return the validated parts without re-parsing cost beyond a
// string scan. The zero value of every ref type is invalid; use IsZero
// to check.
//
// The canonical serialization form is the full Matrix identifier
// (@localpart:server, !opaque:server, #alias:server, $eventid). JSON
// marshaling uses this canonical form via encoding.TextMarshaler, so
// maps keyed by RoomID or UserID deserialize with validation for free.
//
// Identity comparisons across these types are exact string
// comparisons. In a federated deployment the server-name part is load
// bearing: "@mindroom_code:example.com" and
// "@mindroom_code:attacker.net" are different users, and nothing in
// this package will ever treat them as equal.
package ref
