// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package invite tracks pending invitations: explicit, time-bounded
// grants that let an agent participate in a room or thread it is not
// configured for.
//
// Invitations are advisory overrides layered on top of the normal
// routing rules, never a replacement for them. An expired invitation
// grants nothing. The table is a mutex-guarded map; invite and revoke
// are rare next to message volume, so a single coarse lock is the
// right shape.
package invite
