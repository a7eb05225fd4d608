package room

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pointdeck/pointdeck-server/internal/proto"
)

func TestEstimationRound(t *testing.T) {
	_, actor, secret := newTestRoom(t, time.Hour)

	host := attach(t, actor, "host")
	peer := attach(t, actor, "peer")
	drain(t, peer)

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	st := mustRecvState(t, host)
	if len(st.State.Participants) != 1 || st.State.Participants["host"].Name != "Ada" {
		t.Fatalf("unexpected participants after join: %+v", st.State.Participants)
	}

	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeJoin, Name: "Grace"})
	st = mustRecvState(t, host)
	if len(st.State.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(st.State.Participants))
	}

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Checkout flow"})
	st = mustRecvState(t, host)
	if len(st.State.Stories) != 1 {
		t.Fatalf("expected 1 story, got %d", len(st.State.Stories))
	}
	storyA := st.State.Stories[0].ID
	if st.State.CurrentStoryID != storyA {
		t.Fatalf("first story should become current, got %q", st.State.CurrentStoryID)
	}

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Search indexing"})
	st = mustRecvState(t, host)
	if len(st.State.Stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(st.State.Stories))
	}
	storyB := st.State.Stories[1].ID
	if st.State.CurrentStoryID != storyA {
		t.Fatalf("adding a second story must not change the current one")
	}

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeVote, StoryID: storyA, Value: "5"})
	st = mustRecvState(t, host)
	if st.Derived.Stats != nil {
		t.Fatal("stats must be withheld while voting")
	}
	if st.Derived.WaitingFor != 1 {
		t.Fatalf("waitingFor = %d, want 1", st.Derived.WaitingFor)
	}

	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeVote, StoryID: storyA, Value: "8"})
	st = mustRecvState(t, host)
	if st.Derived.WaitingFor != 0 {
		t.Fatalf("waitingFor = %d, want 0", st.Derived.WaitingFor)
	}

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeReveal, RoomSecret: secret})
	st = mustRecvState(t, host)
	if st.State.Phase != PhaseRevealed {
		t.Fatalf("phase = %q, want revealed", st.State.Phase)
	}
	stats := st.Derived.Stats
	if stats == nil {
		t.Fatal("stats expected after reveal")
	}
	if stats.Min != 5 || stats.Max != 8 || stats.Median != 6.5 || stats.Spread != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeLock, StoryID: storyA, Value: "5", RoomSecret: secret})
	st = mustRecvState(t, host)
	if st.State.Phase != PhaseLocked || st.State.LockedByStory[storyA] != "5" {
		t.Fatalf("story not locked: phase=%q locked=%v", st.State.Phase, st.State.LockedByStory)
	}

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeNext, RoomSecret: secret})
	st = mustRecvState(t, host)
	if st.State.CurrentStoryID != storyB {
		t.Fatalf("current story = %q, want %q", st.State.CurrentStoryID, storyB)
	}
	if st.State.Phase != PhaseVoting {
		t.Fatalf("phase = %q, want voting after next", st.State.Phase)
	}
	// Vote history for the finished story is kept.
	if len(st.State.VotesByStory[storyA]) != 2 {
		t.Fatalf("votes for locked story dropped: %v", st.State.VotesByStory)
	}
	if st.Derived.Stats != nil {
		t.Fatal("stats must reset to hidden on the next story")
	}
}

func TestVoteNonFiniteValueAfterReveal(t *testing.T) {
	_, actor, secret := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "host")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	mustRecvState(t, sess)
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Import job"})
	st := mustRecvState(t, sess)
	storyID := st.State.Stories[0].ID

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeVote, StoryID: storyID, Value: "5"})
	mustRecvState(t, sess)
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeReveal, RoomSecret: secret})
	mustRecvState(t, sess)

	// "Inf" parses as a float but is not an estimate. It must not reach
	// stats, and the room must keep broadcasting.
	peer := attach(t, actor, "peer")
	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeJoin, Name: "Grace"})
	mustRecvState(t, sess)
	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeVote, StoryID: storyID, Value: "Inf"})
	drain(t, peer)

	st = mustRecvState(t, sess)
	if st.State.VotesByStory[storyID]["peer"] != "Inf" {
		t.Fatalf("vote not recorded: %v", st.State.VotesByStory[storyID])
	}
	stats := st.Derived.Stats
	if stats == nil || stats.Min != 5 || stats.Max != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestLockedStoryIsFinal(t *testing.T) {
	_, actor, secret := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "host")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	mustRecvState(t, sess)
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Payments"})
	st := mustRecvState(t, sess)
	storyID := st.State.Stories[0].ID

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeLock, StoryID: storyID, Value: "8", RoomSecret: secret})
	mustRecvState(t, sess)

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeEditStory, StoryID: storyID, Title: "Renamed"})
	mustRecvError(t, sess, "Cannot edit a locked story")

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeUpdateNotes, StoryID: storyID, Notes: "notes"})
	mustRecvError(t, sess, "Cannot update notes on a locked story")

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeDeleteStory, StoryID: storyID})
	mustRecvError(t, sess, "Cannot delete a locked story")

	// Votes on a locked story are silently ignored.
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeVote, StoryID: storyID, Value: "3"})
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeChat, Text: "ping"})
	mustRecv(t, sess, "chat")
}

func TestJoinRejectedWhenFull(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	for i := 0; i < MaxParticipants; i++ {
		sess := attach(t, actor, fmt.Sprintf("client-%d", i))
		drain(t, sess)
		deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeJoin, Name: fmt.Sprintf("p%d", i)})
	}

	late := attach(t, actor, "late")
	deliver(t, actor, late, proto.ClientMessage{Type: proto.TypeJoin, Name: "Late"})
	mustRecvError(t, late, "Room full (max 25 participants)")
}

func TestDetachRemovesParticipantAndVotes(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	host := attach(t, actor, "host")
	peer := attach(t, actor, "peer")
	drain(t, host)

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	mustRecvState(t, peer)
	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeJoin, Name: "Grace"})
	mustRecvState(t, peer)
	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Login page"})
	st := mustRecvState(t, peer)
	storyID := st.State.Stories[0].ID
	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeVote, StoryID: storyID, Value: "13"})
	mustRecvState(t, peer)

	actor.Detach(host.ID)
	st = mustRecvState(t, peer)
	if _, ok := st.State.Participants["host"]; ok {
		t.Fatal("detached client still listed as participant")
	}
	if _, ok := st.State.VotesByStory[storyID]["host"]; ok {
		t.Fatal("detached client's vote not removed")
	}
}

func TestHostActionsRequireSecret(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	for _, msg := range []proto.ClientMessage{
		{Type: proto.TypeReveal},
		{Type: proto.TypeLock, StoryID: "s1", Value: "5"},
		{Type: proto.TypeClearVotes, StoryID: "s1"},
		{Type: proto.TypeNext, RoomSecret: "wrong-secret"},
		{Type: proto.TypeFinish},
	} {
		deliver(t, actor, sess, msg)
		mustRecvError(t, sess, "Host secret required")
	}
}

func TestRateLimitPerClient(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "chatty")
	// setName before join is a silent no-op, so nothing lands in the
	// outbound queue until the limiter trips.
	for i := 0; i < 60; i++ {
		deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetName, Name: "x"})
	}
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetName, Name: "x"})
	mustRecvError(t, sess, "Too many requests. Please slow down.")
}

func TestOversizedMessageRejected(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	actor.Deliver(sess.ID, bytes.Repeat([]byte("a"), proto.MaxMessageBytes+1))
	mustRecvError(t, sess, "Message too large")
}

func TestMalformedMessageRejected(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	actor.Deliver(sess.ID, []byte("not json"))
	mustRecvError(t, sess, "Invalid message")

	actor.Deliver(sess.ID, []byte(`{"name":"no type"}`))
	mustRecvError(t, sess, "Invalid message")

	deliver(t, actor, sess, proto.ClientMessage{Type: "teleport"})
	mustRecvError(t, sess, "Invalid message")
}

func TestChatIsIncrementalAndCapped(t *testing.T) {
	hub, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	mustRecvState(t, sess)

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeChat, Text: "  hello  "})
	payload := mustRecv(t, sess, "chat")
	var chat ChatBroadcast
	if err := json.Unmarshal(payload, &chat); err != nil {
		t.Fatalf("decode chat frame: %v", err)
	}
	if chat.Message.Text != "hello" || chat.Message.Name != "Ada" {
		t.Fatalf("unexpected chat message: %+v", chat.Message)
	}

	drain(t, sess)
	for i := 2; i <= 55; i++ {
		deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeChat, Text: fmt.Sprintf("msg %d", i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := hub.Snapshot(context.Background(), actor.RoomID())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		msgs := snap.State.ChatMessages
		if len(msgs) == MaxChatMessages && msgs[len(msgs)-1].Text == "msg 55" {
			if msgs[0].Text != "msg 6" {
				t.Fatalf("oldest retained message = %q, want %q", msgs[0].Text, "msg 6")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("chat ring never settled: %d messages", len(msgs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteCurrentStoryAdvances(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeAddStory, Title: "First"})
	st := mustRecvState(t, sess)
	first := st.State.Stories[0].ID
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Second"})
	st = mustRecvState(t, sess)
	second := st.State.Stories[1].ID

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeDeleteStory, StoryID: first})
	st = mustRecvState(t, sess)
	if st.State.CurrentStoryID != second {
		t.Fatalf("current story = %q, want %q", st.State.CurrentStoryID, second)
	}
	if _, ok := st.State.VotesByStory[first]; ok {
		t.Fatal("votes for deleted story not dropped")
	}
}

func TestAvatarSelection(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	st := mustRecvState(t, sess)
	if st.State.Participants["c1"].Avatar == "" {
		t.Fatal("join must assign an avatar")
	}

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetAvatar, Avatar: "🦊"})
	st = mustRecvState(t, sess)
	if st.State.Participants["c1"].Avatar != "🦊" {
		t.Fatalf("avatar not applied: %+v", st.State.Participants["c1"])
	}

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetAvatar, Avatar: "not an avatar"})
	mustRecvError(t, sess, "Invalid avatar")
}

func TestDuplicateAvatarRejected(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	host := attach(t, actor, "host")
	peer := attach(t, actor, "peer")
	drain(t, host)

	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeJoin, Name: "Ada"})
	mustRecvState(t, peer)
	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeJoin, Name: "Grace"})
	mustRecvState(t, peer)

	// Numbered fallback avatars are never assigned at random while the
	// palette has free entries, so these picks cannot collide with the
	// join assignments.
	deliver(t, actor, host, proto.ClientMessage{Type: proto.TypeSetAvatar, Avatar: "👤8"})
	mustRecvState(t, peer)

	deliver(t, actor, peer, proto.ClientMessage{Type: proto.TypeSetAvatar, Avatar: "👤8"})
	mustRecvError(t, peer, "This avatar is already in use")
}

func TestSetDeck(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetDeck, Deck: &proto.DeckDescriptor{Type: "tshirt"}})
	st := mustRecvState(t, sess)
	if st.State.Deck.Type != DeckTShirt {
		t.Fatalf("deck type = %q, want tshirt", st.State.Deck.Type)
	}

	custom := make([]string, 0, MaxCustomDeck+5)
	for i := 0; i < MaxCustomDeck+5; i++ {
		custom = append(custom, fmt.Sprintf("v%d", i))
	}
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetDeck, Deck: &proto.DeckDescriptor{Type: "custom", Custom: custom}})
	st = mustRecvState(t, sess)
	if st.State.Deck.Type != DeckCustom || len(st.State.Deck.Custom) != MaxCustomDeck {
		t.Fatalf("custom deck not capped: %+v", st.State.Deck)
	}

	// Custom labels are trimmed but kept whole, even past the vote
	// value limit.
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetDeck, Deck: &proto.DeckDescriptor{Type: "custom", Custom: []string{" Extra Large XL ", "", "1"}}})
	st = mustRecvState(t, sess)
	if len(st.State.Deck.Custom) != 2 || st.State.Deck.Custom[0] != "Extra Large XL" {
		t.Fatalf("custom deck labels mangled: %+v", st.State.Deck.Custom)
	}

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeSetDeck, Deck: &proto.DeckDescriptor{Type: "tarot"}})
	mustRecvError(t, sess, "Invalid message")
}

func TestFinishByHost(t *testing.T) {
	hub, actor, secret := newTestRoom(t, time.Hour)
	roomID := actor.RoomID()

	sess := attach(t, actor, "host")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeFinish, RoomSecret: secret})

	payload := mustRecv(t, sess, "finished")
	var fin proto.Finished
	if err := json.Unmarshal(payload, &fin); err != nil {
		t.Fatalf("decode finished frame: %v", err)
	}
	if fin.Reason != "Session ended by host" {
		t.Fatalf("reason = %q", fin.Reason)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not force-closed on finish")
	}
	if sess.CloseReason() != "Session ended by host" {
		t.Fatalf("close reason = %q", sess.CloseReason())
	}

	if _, err := hub.Snapshot(context.Background(), roomID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after finish, got %v", err)
	}
	if _, err := hub.Get(context.Background(), roomID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound from Get after finish, got %v", err)
	}
}

func TestRoomExpires(t *testing.T) {
	hub, actor, _ := newTestRoom(t, 300*time.Millisecond)
	roomID := actor.RoomID()

	sess := attach(t, actor, "c1")

	payload := mustRecv(t, sess, "finished")
	var fin proto.Finished
	if err := json.Unmarshal(payload, &fin); err != nil {
		t.Fatalf("decode finished frame: %v", err)
	}
	if fin.Reason != "Room expired (24 hour limit)" {
		t.Fatalf("reason = %q", fin.Reason)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not force-closed on expiry")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := hub.Snapshot(context.Background(), roomID); errors.Is(err, ErrRoomNotFound) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("room record not purged after expiry")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJoinFirstGuards(t *testing.T) {
	_, actor, _ := newTestRoom(t, time.Hour)

	sess := attach(t, actor, "c1")
	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeAddStory, Title: "Story"})
	st := mustRecvState(t, sess)
	storyID := st.State.Stories[0].ID

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeChat, Text: "hi"})
	mustRecvError(t, sess, "Join the room first")

	deliver(t, actor, sess, proto.ClientMessage{Type: proto.TypeUpdateNotes, StoryID: storyID, Notes: "n"})
	mustRecvError(t, sess, "Join the room first")
}
