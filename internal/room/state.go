// Package room implements the per-room coordination engine: the
// authoritative session state, the single-writer actor that mutates it,
// the session registry, rate limiting, and room expiration.
package room

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pointdeck/pointdeck-server/internal/proto"
)

// Room limits. These mirror the wire contract and are not configurable
// at runtime.
const (
	MaxParticipants  = 25
	MaxStories       = 50
	MaxChatMessages  = 50
	MaxStoryTitleLen = 120
	MaxStoryNotesLen = 1000
	MaxChatLen       = 500
	MaxNameLen       = 24
	MaxVoteLen       = 12
	MaxCustomDeck    = 20

	DefaultName = "Anonymous"
)

// Phase is the room-wide estimation state machine. It is shared by all
// participants and transitions only through explicit actions.
type Phase string

const (
	PhaseVoting   Phase = "voting"
	PhaseRevealed Phase = "revealed"
	PhaseLocked   Phase = "locked"
)

// DeckType names a voting scale preset.
type DeckType string

const (
	DeckFibonacci DeckType = "fibonacci"
	DeckTShirt    DeckType = "tshirt"
	DeckCustom    DeckType = "custom"
)

// Deck describes the permissible vote values.
type Deck struct {
	Type   DeckType `json:"type"`
	Custom []string `json:"custom,omitempty"`
}

// Story is a unit of work being estimated.
type Story struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

// Participant is an ephemeral room member, removed on disconnect.
type Participant struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	JoinedAt int64  `json:"joinedAt"`
}

// ChatMessage is one entry in the bounded chat ring.
type ChatMessage struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// State is the authoritative per-room document: the sole unit of
// persistence and of full-state broadcast. Timestamps are unix millis.
type State struct {
	RoomID    string `json:"roomId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`

	Deck    Deck `json:"deck"`
	FunMode bool `json:"funMode"`

	Stories []*Story `json:"stories"`
	// CurrentStoryID is empty when no story is selected.
	CurrentStoryID string `json:"currentStoryId,omitempty"`

	Phase Phase `json:"phase"`
	// VotesByStory[storyID][clientID] = vote value. History is retained
	// after a story stops being current.
	VotesByStory map[string]map[string]string `json:"votesByStory"`
	// LockedByStory holds final values; presence of a key means the
	// story is permanently locked.
	LockedByStory map[string]string `json:"lockedByStory"`

	Participants map[string]*Participant `json:"participants"`

	ChatMessages []ChatMessage `json:"chatMessages"`
}

// NewState builds the initial document for a freshly created room.
func NewState(roomID string, createdAt time.Time, ttl time.Duration) *State {
	return &State{
		RoomID:        roomID,
		CreatedAt:     createdAt.UnixMilli(),
		ExpiresAt:     createdAt.Add(ttl).UnixMilli(),
		Deck:          Deck{Type: DeckFibonacci},
		FunMode:       true,
		Stories:       []*Story{},
		Phase:         PhaseVoting,
		VotesByStory:  map[string]map[string]string{},
		LockedByStory: map[string]string{},
		Participants:  map[string]*Participant{},
		ChatMessages:  []ChatMessage{},
	}
}

// StoryByID returns the story with the given id, or nil.
func (s *State) StoryByID(id string) *Story {
	for _, st := range s.Stories {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// IsLocked reports whether a final value has been recorded for the story.
func (s *State) IsLocked(storyID string) bool {
	_, ok := s.LockedByStory[storyID]
	return ok
}

// StateMessage is the full-snapshot broadcast envelope.
type StateMessage struct {
	Type    string  `json:"type"`
	State   *State  `json:"state"`
	Derived Derived `json:"derived"`
}

// ChatBroadcast is the incremental chat event envelope; it is sent
// instead of a full snapshot to keep chat payloads small.
type ChatBroadcast struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

// NewStateMessage pairs a state with its derived view.
func NewStateMessage(s *State) StateMessage {
	return StateMessage{Type: proto.TypeState, State: s, Derived: Derive(s)}
}

// CleanText trims whitespace and truncates to max bytes.
func CleanText(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = truncate(s, max)
	}
	return s
}

// truncate cuts at a rune boundary at or below max bytes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
