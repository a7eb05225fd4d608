package room

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pointdeck/pointdeck-server/internal/auth"
	"github.com/pointdeck/pointdeck-server/internal/proto"
	"github.com/pointdeck/pointdeck-server/internal/store"
)

// commandBuffer bounds the actor mailbox. Arrival order on this channel
// is the total order of mutations for the room.
const commandBuffer = 64

type commandKind int

const (
	cmdAttach commandKind = iota
	cmdDetach
	cmdInbound
	cmdExpire
	cmdShutdown
)

type command struct {
	kind   commandKind
	sess   *Session
	sessID string
	data   []byte
}

// Actor owns one room's authoritative state. Exactly one goroutine
// processes its mailbox, so handlers mutate state without locks and
// every session observes snapshots in true mutation order.
type Actor struct {
	roomID      string
	store       store.Store
	log         zerolog.Logger
	onTerminate func(roomID string)
	now         func() time.Time

	commands chan command
	stopped  chan struct{}

	// Owned by the run goroutine.
	state      *State
	secretHash string
	sessions   map[string]*Session
	limiter    *rateLimiter
	expiry     *time.Timer
}

func newActor(rec *store.RoomRecord, st store.Store, logger *zerolog.Logger, onTerminate func(string), now func() time.Time) (*Actor, error) {
	if now == nil {
		now = time.Now
	}

	state := &State{}
	if err := json.Unmarshal(rec.State, state); err != nil {
		return nil, err
	}

	a := &Actor{
		roomID:      rec.RoomID,
		store:       st,
		log:         logger.With().Str("room_id", rec.RoomID).Logger(),
		onTerminate: onTerminate,
		now:         now,
		commands:    make(chan command, commandBuffer),
		stopped:     make(chan struct{}),
		state:       state,
		secretHash:  rec.SecretHash,
		sessions:    make(map[string]*Session),
		limiter:     newRateLimiter(now),
	}

	// Sessions do not survive a restart. Any participants in the
	// persisted state are ghosts from a previous process; drop them and
	// their votes before anyone attaches.
	if len(state.Participants) > 0 {
		for clientID := range state.Participants {
			for storyID := range state.VotesByStory {
				delete(state.VotesByStory[storyID], clientID)
			}
		}
		state.Participants = make(map[string]*Participant)
		a.persist()
	}

	a.armExpiry()
	return a, nil
}

// RoomID returns the actor's room identifier.
func (a *Actor) RoomID() string {
	return a.roomID
}

// Attach registers a live session: it receives hello, then a full
// snapshot, then every subsequent broadcast.
func (a *Actor) Attach(sess *Session) {
	a.post(command{kind: cmdAttach, sess: sess})
}

// Detach removes a session. The actor drops the client's participant
// entry and votes and broadcasts the updated state; this is how
// "someone left" propagates without an explicit leave message.
func (a *Actor) Detach(sessID string) {
	a.post(command{kind: cmdDetach, sessID: sessID})
}

// Deliver hands one raw inbound frame to the actor.
func (a *Actor) Deliver(sessID string, data []byte) {
	a.post(command{kind: cmdInbound, sessID: sessID, data: data})
}

// Shutdown closes all sessions without erasing durable state. Used on
// process shutdown; the room revives from the store on restart.
func (a *Actor) Shutdown() {
	a.post(command{kind: cmdShutdown})
}

func (a *Actor) post(cmd command) {
	select {
	case a.commands <- cmd:
	case <-a.stopped:
		// Room is gone; in-flight messages are no-ops.
	}
}

func (a *Actor) run() {
	for {
		cmd := <-a.commands
		if a.handle(cmd) {
			return
		}
	}
}

// handle processes one command; returns true when the actor terminated.
func (a *Actor) handle(cmd command) bool {
	switch cmd.kind {
	case cmdAttach:
		a.handleAttach(cmd.sess)
	case cmdDetach:
		a.handleDetach(cmd.sessID)
	case cmdInbound:
		return a.handleInbound(cmd.sessID, cmd.data)
	case cmdExpire:
		return a.handleExpire()
	case cmdShutdown:
		a.terminate("", false)
		return true
	}
	return false
}

func (a *Actor) handleAttach(sess *Session) {
	a.sessions[sess.ID] = sess
	a.sendTo(sess.ID, proto.NewHello(sess.ID))
	a.sendTo(sess.ID, NewStateMessage(a.state))
	a.log.Debug().Str("client_id", sess.ID).Int("sessions", len(a.sessions)).Msg("session attached")
}

func (a *Actor) handleDetach(sessID string) {
	if _, ok := a.sessions[sessID]; !ok {
		return
	}
	delete(a.sessions, sessID)
	a.limiter.forget(sessID)

	_, wasParticipant := a.state.Participants[sessID]
	delete(a.state.Participants, sessID)
	for storyID := range a.state.VotesByStory {
		delete(a.state.VotesByStory[storyID], sessID)
	}

	if wasParticipant {
		a.persistAndBroadcast()
	}
	a.log.Debug().Str("client_id", sessID).Int("sessions", len(a.sessions)).Msg("session detached")
}

func (a *Actor) handleInbound(sessID string, data []byte) bool {
	if len(data) > proto.MaxMessageBytes {
		a.sendTo(sessID, proto.NewError(errMessageTooLarge))
		return false
	}

	// Rate limiting is independent of message validity.
	if !a.limiter.allow(sessID) {
		a.sendTo(sessID, proto.NewError(errRateLimited))
		return false
	}

	msg := &proto.ClientMessage{}
	if err := json.Unmarshal(data, msg); err != nil || msg.Type == "" {
		a.sendTo(sessID, proto.NewError(errInvalidMessage))
		return false
	}

	return a.dispatch(sessID, msg)
}

// dispatch applies one client message; returns true when the room was
// destroyed (finish).
func (a *Actor) dispatch(sessID string, msg *proto.ClientMessage) bool {
	switch msg.Type {
	case proto.TypeJoin:
		a.handleJoin(sessID, msg.Name)
	case proto.TypeSetName:
		a.handleSetName(sessID, msg.Name)
	case proto.TypeSetAvatar:
		a.handleSetAvatar(sessID, msg.Avatar)
	case proto.TypeSetDeck:
		a.handleSetDeck(sessID, msg.Deck)
	case proto.TypeToggleFun:
		a.handleToggleFun(msg.FunMode)
	case proto.TypeAddStory:
		a.handleAddStory(sessID, msg.Title, msg.Notes)
	case proto.TypeEditStory:
		a.handleEditStory(sessID, msg.StoryID, msg.Title)
	case proto.TypeUpdateNotes:
		a.handleUpdateNotes(sessID, msg.StoryID, msg.Notes)
	case proto.TypeDeleteStory:
		a.handleDeleteStory(sessID, msg.StoryID)
	case proto.TypeSetCurrentStory:
		a.handleSetCurrentStory(msg.StoryID)
	case proto.TypeVote:
		a.handleVote(sessID, msg.StoryID, msg.Value)
	case proto.TypeReveal:
		a.handleReveal(sessID, msg.RoomSecret)
	case proto.TypeLock:
		a.handleLock(sessID, msg.StoryID, msg.Value, msg.RoomSecret)
	case proto.TypeClearVotes:
		a.handleClearVotes(sessID, msg.StoryID, msg.RoomSecret)
	case proto.TypeNext:
		a.handleNext(sessID, msg.RoomSecret)
	case proto.TypeChat:
		a.handleChat(sessID, msg.Text)
	case proto.TypeFinish:
		return a.handleFinish(sessID, msg.RoomSecret)
	default:
		a.log.Debug().Str("client_id", sessID).Str("type", msg.Type).Msg("unknown message type")
		a.sendTo(sessID, proto.NewError(errInvalidMessage))
	}
	return false
}

func (a *Actor) handleJoin(sessID, name string) {
	if len(a.state.Participants) >= MaxParticipants {
		a.sendTo(sessID, proto.NewError(errRoomFull))
		return
	}

	cleaned := CleanText(name, MaxNameLen)
	if cleaned == "" {
		cleaned = DefaultName
	}

	used := make(map[string]bool, len(a.state.Participants))
	for _, p := range a.state.Participants {
		used[p.Avatar] = true
	}

	a.state.Participants[sessID] = &Participant{
		Name:     cleaned,
		Avatar:   randomAvatar(used),
		JoinedAt: a.now().UnixMilli(),
	}
	a.persistAndBroadcast()
}

func (a *Actor) handleSetName(sessID, name string) {
	p, ok := a.state.Participants[sessID]
	if !ok {
		return
	}
	cleaned := CleanText(name, MaxNameLen)
	if cleaned == "" {
		cleaned = DefaultName
	}
	p.Name = cleaned
	a.persistAndBroadcast()
}

func (a *Actor) handleSetAvatar(sessID, avatar string) {
	p, ok := a.state.Participants[sessID]
	if !ok {
		return
	}
	if !validAvatar(avatar) {
		a.sendTo(sessID, proto.NewError(errInvalidAvatar))
		return
	}
	for id, other := range a.state.Participants {
		if id != sessID && other.Avatar == avatar {
			a.sendTo(sessID, proto.NewError(errAvatarInUse))
			return
		}
	}
	p.Avatar = avatar
	a.persistAndBroadcast()
}

func (a *Actor) handleSetDeck(sessID string, deck *proto.DeckDescriptor) {
	if deck == nil {
		a.sendTo(sessID, proto.NewError(errInvalidMessage))
		return
	}
	switch DeckType(deck.Type) {
	case DeckCustom:
		custom := make([]string, 0, len(deck.Custom))
		for _, v := range deck.Custom {
			// Deck values are card labels, not votes; trim whitespace
			// but never truncate them.
			if cleaned := strings.TrimSpace(v); cleaned != "" {
				custom = append(custom, cleaned)
			}
			if len(custom) == MaxCustomDeck {
				break
			}
		}
		a.state.Deck = Deck{Type: DeckCustom, Custom: custom}
	case DeckFibonacci, DeckTShirt:
		a.state.Deck = Deck{Type: DeckType(deck.Type)}
	default:
		a.sendTo(sessID, proto.NewError(errInvalidMessage))
		return
	}
	a.persistAndBroadcast()
}

func (a *Actor) handleToggleFun(funMode bool) {
	a.state.FunMode = funMode
	a.persistAndBroadcast()
}

func (a *Actor) handleAddStory(sessID, title, notes string) {
	if len(a.state.Stories) >= MaxStories {
		a.sendTo(sessID, proto.NewError(errTooManyStories))
		return
	}
	cleaned := CleanText(title, MaxStoryTitleLen)
	if cleaned == "" {
		a.sendTo(sessID, proto.NewError(errTitleRequired))
		return
	}

	story := &Story{
		ID:    uuid.NewString(),
		Title: cleaned,
		Notes: truncate(notes, MaxStoryNotesLen),
	}
	a.state.Stories = append(a.state.Stories, story)

	// First story in the room becomes current immediately.
	if a.state.CurrentStoryID == "" {
		a.state.CurrentStoryID = story.ID
		a.state.Phase = PhaseVoting
	}
	a.persistAndBroadcast()
}

func (a *Actor) handleEditStory(sessID, storyID, title string) {
	story := a.state.StoryByID(storyID)
	if story == nil {
		return
	}
	if a.state.IsLocked(storyID) {
		a.sendTo(sessID, proto.NewError(errEditLocked))
		return
	}
	cleaned := CleanText(title, MaxStoryTitleLen)
	if cleaned == "" {
		a.sendTo(sessID, proto.NewError(errTitleRequired))
		return
	}
	story.Title = cleaned
	a.persistAndBroadcast()
}

func (a *Actor) handleUpdateNotes(sessID, storyID, notes string) {
	story := a.state.StoryByID(storyID)
	if story == nil {
		return
	}
	if a.state.IsLocked(storyID) {
		a.sendTo(sessID, proto.NewError(errNotesLocked))
		return
	}
	if _, ok := a.state.Participants[sessID]; !ok {
		a.sendTo(sessID, proto.NewError(errJoinFirst))
		return
	}
	story.Notes = truncate(notes, MaxStoryNotesLen)
	a.persistAndBroadcast()
}

func (a *Actor) handleDeleteStory(sessID, storyID string) {
	idx := -1
	for i, st := range a.state.Stories {
		if st.ID == storyID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	if a.state.IsLocked(storyID) {
		a.sendTo(sessID, proto.NewError(errDeleteLocked))
		return
	}

	a.state.Stories = append(a.state.Stories[:idx], a.state.Stories[idx+1:]...)
	delete(a.state.VotesByStory, storyID)

	if a.state.CurrentStoryID == storyID {
		a.state.CurrentStoryID = ""
		if len(a.state.Stories) > 0 {
			a.state.CurrentStoryID = a.state.Stories[0].ID
		}
		a.state.Phase = PhaseVoting
	}
	a.persistAndBroadcast()
}

func (a *Actor) handleSetCurrentStory(storyID string) {
	if a.state.StoryByID(storyID) == nil {
		return
	}
	a.state.CurrentStoryID = storyID
	// Voting resets, but prior votes for the story are kept: re-selecting
	// a story resumes its history.
	a.state.Phase = PhaseVoting
	a.persistAndBroadcast()
}

func (a *Actor) handleVote(sessID, storyID, value string) {
	if a.state.CurrentStoryID == "" || a.state.CurrentStoryID != storyID {
		return
	}
	if a.state.Phase == PhaseLocked {
		return
	}
	if a.state.VotesByStory[storyID] == nil {
		a.state.VotesByStory[storyID] = map[string]string{}
	}
	a.state.VotesByStory[storyID][sessID] = truncate(value, MaxVoteLen)
	a.persistAndBroadcast()
}

func (a *Actor) handleReveal(sessID, secret string) {
	if !a.isHost(secret) {
		a.sendTo(sessID, proto.NewError(errHostRequired))
		return
	}
	if a.state.CurrentStoryID == "" {
		return
	}
	a.state.Phase = PhaseRevealed
	a.persistAndBroadcast()
}

func (a *Actor) handleLock(sessID, storyID, value, secret string) {
	if !a.isHost(secret) {
		a.sendTo(sessID, proto.NewError(errHostRequired))
		return
	}
	if a.state.StoryByID(storyID) == nil {
		return
	}
	a.state.LockedByStory[storyID] = truncate(value, MaxVoteLen)
	a.state.Phase = PhaseLocked
	a.persistAndBroadcast()
}

func (a *Actor) handleClearVotes(sessID, storyID, secret string) {
	if !a.isHost(secret) {
		a.sendTo(sessID, proto.NewError(errHostRequired))
		return
	}
	a.state.VotesByStory[storyID] = map[string]string{}
	a.state.Phase = PhaseVoting
	a.persistAndBroadcast()
}

func (a *Actor) handleNext(sessID, secret string) {
	if !a.isHost(secret) {
		a.sendTo(sessID, proto.NewError(errHostRequired))
		return
	}
	if a.state.CurrentStoryID == "" {
		return
	}
	for i, st := range a.state.Stories {
		if st.ID == a.state.CurrentStoryID {
			if i+1 < len(a.state.Stories) {
				a.state.CurrentStoryID = a.state.Stories[i+1].ID
			}
			break
		}
	}
	a.state.Phase = PhaseVoting
	a.persistAndBroadcast()
}

func (a *Actor) handleChat(sessID, text string) {
	p, ok := a.state.Participants[sessID]
	if !ok {
		a.sendTo(sessID, proto.NewError(errJoinFirst))
		return
	}
	cleaned := CleanText(text, MaxChatLen)
	if cleaned == "" {
		return
	}

	chatMsg := ChatMessage{
		ID:        uuid.NewString(),
		ClientID:  sessID,
		Name:      p.Name,
		Text:      cleaned,
		Timestamp: a.now().UnixMilli(),
	}

	a.state.ChatMessages = append(a.state.ChatMessages, chatMsg)
	if len(a.state.ChatMessages) > MaxChatMessages {
		a.state.ChatMessages = a.state.ChatMessages[len(a.state.ChatMessages)-MaxChatMessages:]
	}

	a.persist()
	// Chat is an incremental event, not a full snapshot.
	a.broadcastPayload(mustMarshal(ChatBroadcast{Type: proto.TypeChat, Message: chatMsg}))
}

func (a *Actor) handleFinish(sessID, secret string) bool {
	if !a.isHost(secret) {
		a.sendTo(sessID, proto.NewError(errHostRequired))
		return false
	}
	a.log.Info().Msg("room finished by host")
	a.terminate(reasonHostFinished, true)
	return true
}

func (a *Actor) handleExpire() bool {
	if a.now().UnixMilli() >= a.state.ExpiresAt {
		a.log.Info().Msg("room expired")
		a.terminate(reasonRoomExpired, true)
		return true
	}
	// Fired early; re-arm for the true expiry.
	a.armExpiry()
	return false
}

// terminate broadcasts the finished notice (when reason is non-empty),
// force-closes all sessions, optionally purges storage, and stops the
// actor.
func (a *Actor) terminate(reason string, purge bool) {
	if reason != "" {
		a.broadcastPayload(mustMarshal(proto.NewFinished(reason)))
	}
	for _, sess := range a.sessions {
		sess.close(reason)
	}
	a.sessions = make(map[string]*Session)

	if purge {
		if err := a.store.DeleteRoom(context.Background(), a.roomID); err != nil {
			a.log.Error().Err(err).Msg("failed to delete room state")
		}
	}

	if a.expiry != nil {
		a.expiry.Stop()
	}
	close(a.stopped)
	if a.onTerminate != nil {
		a.onTerminate(a.roomID)
	}
}

func (a *Actor) armExpiry() {
	if a.expiry != nil {
		a.expiry.Stop()
	}
	until := time.Until(time.UnixMilli(a.state.ExpiresAt))
	if until < 0 {
		until = 0
	}
	a.expiry = time.AfterFunc(until, func() {
		a.post(command{kind: cmdExpire})
	})
}

func (a *Actor) isHost(secret string) bool {
	return auth.VerifySecret(a.secretHash, secret)
}

// persistAndBroadcast is the tail of every successful mutation: the
// snapshot is persisted first, then broadcast, so no session ever
// observes a snapshot ahead of durable state.
func (a *Actor) persistAndBroadcast() {
	a.persist()
	a.broadcastPayload(mustMarshal(NewStateMessage(a.state)))
}

func (a *Actor) persist() {
	data, err := json.Marshal(a.state)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to marshal room state")
		return
	}
	if err := a.store.SaveState(context.Background(), a.roomID, data); err != nil {
		a.log.Error().Err(err).Msg("failed to persist room state")
	}
}

func (a *Actor) broadcastPayload(payload []byte) {
	for _, sess := range a.sessions {
		sess.send(payload)
	}
}

func (a *Actor) sendTo(sessID string, v any) {
	sess, ok := a.sessions[sessID]
	if !ok {
		return
	}
	sess.send(mustMarshal(v))
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All server message types marshal cleanly; this is unreachable.
		panic(err)
	}
	return data
}
