// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"

	"github.com/mindroom-ai/mindroom/lib/ref"
)

// Session is the interface the routing and dispatch layers use to
// talk to the homeserver. The production implementation is
// *DirectSession; tests substitute fakes.
type Session interface {
	// UserID returns the fully-qualified Matrix user ID of the
	// account the session authenticates as.
	UserID() ref.UserID

	// Close releases any resources held by the session. Idempotent.
	Close() error

	// WhoAmI validates the session and returns the user ID.
	WhoAmI(ctx context.Context) (ref.UserID, error)

	// ResolveAlias resolves a room alias to a room ID.
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)

	// JoinRoom joins a room by ID.
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)

	// JoinedRooms returns the rooms the account has joined.
	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)

	// InviteUser invites a user to a room.
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error

	// GetRoomMembers returns the members of a room.
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error)

	// GetEvent fetches a single event by ID. Used for the one-hop
	// reply-chain walk when resolving thread context.
	GetEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (*Event, error)

	// SendMessage sends an m.room.message to a room and returns the
	// event ID. Edits travel through here too, as NewEdit content.
	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)

	// SendReaction sends an m.reaction annotating target.
	SendReaction(ctx context.Context, roomID ref.RoomID, content ReactionContent) (ref.EventID, error)

	// RedactEvent removes a previously sent event. Used to retract a
	// cancelled streaming response.
	RedactEvent(ctx context.Context, roomID ref.RoomID, eventID ref.EventID, reason string) error

	// RoomMessages fetches paginated room history.
	RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error)

	// ThreadMessages fetches messages in a thread via the relations
	// endpoint.
	ThreadMessages(ctx context.Context, roomID ref.RoomID, threadRoot ref.EventID, options ThreadMessagesOptions) (*ThreadMessagesResponse, error)

	// Sync performs an incremental sync with the homeserver.
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

// Compile-time check: *DirectSession implements Session.
var _ Session = (*DirectSession)(nil)
