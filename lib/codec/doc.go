// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides mindroom's standard CBOR encoding
// configuration and the zstd frame helpers used by the thread history
// snapshot cache.
//
// Two serialization formats, one boundary: JSON for the Matrix
// Client-Server API and configuration, CBOR for internal on-disk
// state (history snapshots). The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, which keeps snapshot content hashes
// stable.
//
// Types implementing encoding.TextMarshaler (ref.UserID, ref.RoomID,
// ref.EventID) serialize as CBOR text strings; without that setting
// their unexported fields would serialize as empty maps.
package codec
