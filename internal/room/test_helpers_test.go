package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pointdeck/pointdeck-server/internal/log"
	"github.com/pointdeck/pointdeck-server/internal/store"
)

// memStore is an in-memory store.Store for actor and hub tests.
type memStore struct {
	mu    sync.Mutex
	rooms map[string]*store.RoomRecord
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[string]*store.RoomRecord)}
}

func (m *memStore) CreateRoom(_ context.Context, rec *store.RoomRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.rooms[rec.RoomID] = &cp
	return nil
}

func (m *memStore) GetRoom(_ context.Context, roomID string) (*store.RoomRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[roomID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) SaveState(_ context.Context, roomID string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[roomID]
	if !ok {
		return store.ErrNotFound
	}
	rec.State = append([]byte(nil), state...)
	return nil
}

func (m *memStore) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

func (m *memStore) ListRoomIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) Close() error { return nil }

// newTestRoom creates a hub with an in-memory store, one room, and a
// live actor for it.
func newTestRoom(t *testing.T, ttl time.Duration) (*Hub, *Actor, string) {
	t.Helper()

	hub := NewHub(newMemStore(), log.Nop(), ttl)
	roomID, secret, err := hub.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	actor, err := hub.Get(context.Background(), roomID)
	if err != nil {
		t.Fatalf("get actor: %v", err)
	}
	return hub, actor, secret
}

// attach registers a session and consumes the hello and initial state
// frames so tests start from a clean outbound queue.
func attach(t *testing.T, a *Actor, clientID string) *Session {
	t.Helper()

	sess := NewSession(clientID)
	a.Attach(sess)
	mustRecv(t, sess, "hello")
	mustRecv(t, sess, "state")
	return sess
}

// deliver marshals a message and hands it to the actor as the session.
func deliver(t *testing.T, a *Actor, sess *Session, msg any) {
	t.Helper()

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	a.Deliver(sess.ID, data)
}

// mustRecv waits for the next outbound frame of the given type,
// skipping frames of other types.
func mustRecv(t *testing.T, sess *Session, wantType string) []byte {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-sess.Outbound():
			var envelope struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &envelope); err != nil {
				t.Fatalf("bad frame %q: %v", payload, err)
			}
			if envelope.Type == wantType {
				return payload
			}
		case <-deadline:
			t.Fatalf("no %q frame received", wantType)
		}
	}
}

// mustRecvState decodes the next state broadcast.
func mustRecvState(t *testing.T, sess *Session) *StateMessage {
	t.Helper()

	payload := mustRecv(t, sess, "state")
	msg := &StateMessage{}
	if err := json.Unmarshal(payload, msg); err != nil {
		t.Fatalf("decode state frame: %v", err)
	}
	return msg
}

// mustRecvError asserts the next error frame carries the given message.
func mustRecvError(t *testing.T, sess *Session, want string) {
	t.Helper()

	payload := mustRecv(t, sess, "error")
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if msg.Message != want {
		t.Fatalf("error message = %q, want %q", msg.Message, want)
	}
}

// drain discards outbound frames until the session is closed or the
// test ends.
func drain(t *testing.T, sess *Session) {
	t.Helper()

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-sess.Outbound():
			case <-sess.Done():
				return
			case <-done:
				return
			}
		}
	}()
}
