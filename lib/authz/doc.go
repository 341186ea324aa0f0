// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package authz evaluates sender permissions for inbound room events.
//
// The model is deliberately small: a static Policy loaded from
// configuration, evaluated against the sender's canonical Matrix user
// ID. Internal identities (the deployment's service account and every
// agent, team, and router identity) are always authorized; human
// senders pass through an alias map, a global allow list, and per-room
// allow lists before falling back to the default-access flag.
//
// All checks default to deny on ambiguity. A malformed identity in a
// policy entry or a relay field never grants access; it evaluates as
// a sender that matches nothing.
package authz
