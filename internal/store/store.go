// Package store defines durable persistence for room state documents.
// Each room is one record: an opaque JSON state blob plus the secret
// digest and expiry needed to revive the room after a restart.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a room record does not exist.
var ErrNotFound = errors.New("room record not found")

// RoomRecord is the unit of persistence for one room.
type RoomRecord struct {
	RoomID     string
	State      []byte // JSON-encoded room state document
	SecretHash string // bcrypt digest of the room secret; plaintext is never stored
	ExpiresAt  time.Time
}

// Store handles room record persistence. The state blob for a room is
// written exclusively by that room's actor.
type Store interface {
	// CreateRoom inserts a new room record. Fails if the id exists.
	CreateRoom(ctx context.Context, rec *RoomRecord) error

	// GetRoom retrieves a room record, or ErrNotFound.
	GetRoom(ctx context.Context, roomID string) (*RoomRecord, error)

	// SaveState overwrites the state blob for a room.
	SaveState(ctx context.Context, roomID string, state []byte) error

	// DeleteRoom erases all durable data for a room.
	DeleteRoom(ctx context.Context, roomID string) error

	// ListRoomIDs returns the ids of all persisted rooms. Used at
	// startup to re-arm expiry timers.
	ListRoomIDs(ctx context.Context) ([]string, error)

	// Close closes the underlying database connection.
	Close() error
}
