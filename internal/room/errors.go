package room

import (
	"errors"
	"fmt"
)

// ErrRoomNotFound is returned when no room exists for the requested id.
var ErrRoomNotFound = errors.New("room not found")

// ErrHubClosed is returned when the hub has been shut down.
var ErrHubClosed = errors.New("hub closed")

// Client-visible error strings. Host-auth failures use one uniform
// message so callers cannot distinguish a wrong secret from a missing
// room or which action was attempted.
var (
	errRoomFull       = fmt.Sprintf("Room full (max %d participants)", MaxParticipants)
	errTooManyStories = fmt.Sprintf("Too many stories (max %d)", MaxStories)
)

const (
	errTitleRequired    = "Story title required"
	errInvalidAvatar    = "Invalid avatar"
	errAvatarInUse      = "This avatar is already in use"
	errEditLocked       = "Cannot edit a locked story"
	errNotesLocked      = "Cannot update notes on a locked story"
	errDeleteLocked     = "Cannot delete a locked story"
	errJoinFirst        = "Join the room first"
	errHostRequired     = "Host secret required"
	errRateLimited      = "Too many requests. Please slow down."
	errMessageTooLarge  = "Message too large"
	errInvalidMessage   = "Invalid message"
	reasonHostFinished  = "Session ended by host"
	reasonRoomExpired   = "Room expired (24 hour limit)"
)
