package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pointdeck/pointdeck-server/internal/auth"
	"github.com/pointdeck/pointdeck-server/internal/store"
	"github.com/pointdeck/pointdeck-server/internal/utils"
)

// Hub is the keyed actor registry: one live actor per room, created on
// demand and revived from the store after a restart. Actors remove
// themselves when the room finishes or expires.
type Hub struct {
	store store.Store
	log   *zerolog.Logger
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	actors map[string]*Actor
	closed bool
}

// NewHub builds a hub backed by the given store. ttl is the fixed room
// lifetime applied at creation.
func NewHub(st store.Store, logger *zerolog.Logger, ttl time.Duration) *Hub {
	return &Hub{
		store:  st,
		log:    logger,
		ttl:    ttl,
		now:    time.Now,
		actors: make(map[string]*Actor),
	}
}

// Run blocks until ctx is canceled, then shuts down every live actor.
// Durable state is kept so rooms revive on the next start.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	actors := make([]*Actor, 0, len(h.actors))
	for _, a := range h.actors {
		actors = append(actors, a)
	}
	h.mu.Unlock()

	for _, a := range actors {
		a.Shutdown()
	}
}

// CreateRoom initializes a new room: generates the id and secret,
// persists the initial state with the secret digest, and spawns the
// actor with its expiry timer armed. The plaintext secret is returned
// once and never recoverable thereafter.
func (h *Hub) CreateRoom(ctx context.Context) (roomID, roomSecret string, err error) {
	roomID = utils.NewRoomID()
	roomSecret = utils.NewRoomSecret()

	secretHash, err := auth.HashSecret(roomSecret)
	if err != nil {
		return "", "", err
	}

	state := NewState(roomID, h.now(), h.ttl)
	data, err := json.Marshal(state)
	if err != nil {
		return "", "", fmt.Errorf("marshal initial state: %w", err)
	}

	rec := &store.RoomRecord{
		RoomID:     roomID,
		State:      data,
		SecretHash: secretHash,
		ExpiresAt:  time.UnixMilli(state.ExpiresAt),
	}
	if err := h.store.CreateRoom(ctx, rec); err != nil {
		return "", "", fmt.Errorf("create room: %w", err)
	}

	if _, err := h.spawn(rec); err != nil {
		return "", "", err
	}

	h.log.Info().Str("room_id", roomID).Msg("room created")
	return roomID, roomSecret, nil
}

// Get returns the live actor for a room, reviving it from the store if
// needed. Returns ErrRoomNotFound when no durable state exists.
func (h *Hub) Get(ctx context.Context, roomID string) (*Actor, error) {
	h.mu.Lock()
	if a, ok := h.actors[roomID]; ok {
		h.mu.Unlock()
		return a, nil
	}
	h.mu.Unlock()

	rec, err := h.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}

	return h.spawn(rec)
}

// Snapshot returns the current state and derived view for a room, for
// initial page load or as a fallback before a live channel exists.
func (h *Hub) Snapshot(ctx context.Context, roomID string) (*StateMessage, error) {
	rec, err := h.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}

	state := &State{}
	if err := json.Unmarshal(rec.State, state); err != nil {
		return nil, fmt.Errorf("decode room state: %w", err)
	}
	msg := NewStateMessage(state)
	return &msg, nil
}

// Restore spawns actors for every persisted room so their expiry timers
// re-arm after a process restart. Rooms past their expiry are purged as
// soon as their timer fires.
func (h *Hub) Restore(ctx context.Context) error {
	ids, err := h.store.ListRoomIDs(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	for _, id := range ids {
		if _, err := h.Get(ctx, id); err != nil && !errors.Is(err, ErrRoomNotFound) {
			h.log.Warn().Err(err).Str("room_id", id).Msg("failed to restore room")
		}
	}
	h.log.Info().Int("rooms", len(ids)).Msg("rooms restored")
	return nil
}

func (h *Hub) spawn(rec *store.RoomRecord) (*Actor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	// Lost the race against a concurrent spawn for the same room.
	if a, ok := h.actors[rec.RoomID]; ok {
		return a, nil
	}

	a, err := newActor(rec, h.store, h.log, h.remove, h.now)
	if err != nil {
		return nil, fmt.Errorf("spawn actor: %w", err)
	}
	h.actors[rec.RoomID] = a
	go a.run()
	return a, nil
}

func (h *Hub) remove(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.actors, roomID)
}
