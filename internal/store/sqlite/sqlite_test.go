package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pointdeck/pointdeck-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoomRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expires := time.Now().Add(24 * time.Hour).Truncate(time.Millisecond)
	rec := &store.RoomRecord{
		RoomID:     "room1",
		State:      []byte(`{"roomId":"room1"}`),
		SecretHash: "$2a$10$fakehash",
		ExpiresAt:  expires,
	}
	if err := s.CreateRoom(ctx, rec); err != nil {
		t.Fatalf("create room: %v", err)
	}

	got, err := s.GetRoom(ctx, "room1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.RoomID != rec.RoomID || got.SecretHash != rec.SecretHash {
		t.Fatalf("record mismatch: %+v", got)
	}
	if string(got.State) != string(rec.State) {
		t.Fatalf("state blob mismatch: %s", got.State)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expiresAt = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetRoom(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRoomDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &store.RoomRecord{RoomID: "room1", State: []byte(`{}`), SecretHash: "h", ExpiresAt: time.Now()}
	if err := s.CreateRoom(ctx, rec); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := s.CreateRoom(ctx, rec); err == nil {
		t.Fatal("duplicate room id accepted")
	}
}

func TestSaveState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &store.RoomRecord{RoomID: "room1", State: []byte(`{"v":1}`), SecretHash: "h", ExpiresAt: time.Now()}
	if err := s.CreateRoom(ctx, rec); err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := s.SaveState(ctx, "room1", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("save state: %v", err)
	}
	got, err := s.GetRoom(ctx, "room1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if string(got.State) != `{"v":2}` {
		t.Fatalf("state not overwritten: %s", got.State)
	}

	if err := s.SaveState(ctx, "ghost", []byte(`{}`)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown room, got %v", err)
	}
}

func TestDeleteRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &store.RoomRecord{RoomID: "room1", State: []byte(`{}`), SecretHash: "h", ExpiresAt: time.Now()}
	if err := s.CreateRoom(ctx, rec); err != nil {
		t.Fatalf("create room: %v", err)
	}

	if err := s.DeleteRoom(ctx, "room1"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := s.GetRoom(ctx, "room1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing room is not an error.
	if err := s.DeleteRoom(ctx, "room1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestListRoomIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids, err := s.ListRoomIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty list, got %v", ids)
	}

	for _, id := range []string{"a", "b", "c"} {
		rec := &store.RoomRecord{RoomID: id, State: []byte(`{}`), SecretHash: "h", ExpiresAt: time.Now()}
		if err := s.CreateRoom(ctx, rec); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	ids, err = s.ListRoomIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %v", ids)
	}
}
