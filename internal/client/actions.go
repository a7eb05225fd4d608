package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"

	"github.com/pointdeck/pointdeck-server/internal/proto"
	"github.com/pointdeck/pointdeck-server/internal/room"
)

const writeTimeout = 5 * time.Second

func (c *Controller) send(msg proto.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *Controller) sendHost(msg proto.ClientMessage) error {
	if c.roomSecret == "" {
		return ErrNotHost
	}
	msg.RoomSecret = c.roomSecret
	return c.send(msg)
}

// Join enters the room with a display name.
func (c *Controller) Join(name string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeJoin, Name: name})
}

// SetName updates the display name.
func (c *Controller) SetName(name string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeSetName, Name: name})
}

// SetAvatar claims an avatar from the palette.
func (c *Controller) SetAvatar(avatar string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeSetAvatar, Avatar: avatar})
}

// SetDeck switches the voting scale.
func (c *Controller) SetDeck(deckType room.DeckType, custom []string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeSetDeck, Deck: &proto.DeckDescriptor{
		Type:   string(deckType),
		Custom: custom,
	}})
}

// ToggleFun sets the celebration toggle.
func (c *Controller) ToggleFun(funMode bool) error {
	return c.send(proto.ClientMessage{Type: proto.TypeToggleFun, FunMode: funMode})
}

// AddStory appends a story to the backlog.
func (c *Controller) AddStory(title, notes string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeAddStory, Title: title, Notes: notes})
}

// EditStory retitles a story; locked stories reject the edit.
func (c *Controller) EditStory(storyID, title string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeEditStory, StoryID: storyID, Title: title})
}

// UpdateNotes replaces a story's notes.
func (c *Controller) UpdateNotes(storyID, notes string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeUpdateNotes, StoryID: storyID, Notes: notes})
}

// DeleteStory removes a story and its vote history.
func (c *Controller) DeleteStory(storyID string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeDeleteStory, StoryID: storyID})
}

// SetCurrentStory selects the story to estimate.
func (c *Controller) SetCurrentStory(storyID string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeSetCurrentStory, StoryID: storyID})
}

// Vote records this client's vote for the current story.
func (c *Controller) Vote(storyID, value string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeVote, StoryID: storyID, Value: value})
}

// Chat sends a chat message.
func (c *Controller) Chat(text string) error {
	return c.send(proto.ClientMessage{Type: proto.TypeChat, Text: text})
}

// Reveal shows all votes for the current story. Host only.
func (c *Controller) Reveal() error {
	return c.sendHost(proto.ClientMessage{Type: proto.TypeReveal})
}

// Lock records the final value for a story. Host only.
func (c *Controller) Lock(storyID, value string) error {
	return c.sendHost(proto.ClientMessage{Type: proto.TypeLock, StoryID: storyID, Value: value})
}

// ClearVotes discards votes for a story and reopens voting. Host only.
func (c *Controller) ClearVotes(storyID string) error {
	return c.sendHost(proto.ClientMessage{Type: proto.TypeClearVotes, StoryID: storyID})
}

// Next advances to the following story. Host only.
func (c *Controller) Next() error {
	return c.sendHost(proto.ClientMessage{Type: proto.TypeNext})
}

// Finish ends the session and erases the room. Host only.
func (c *Controller) Finish() error {
	return c.sendHost(proto.ClientMessage{Type: proto.TypeFinish})
}

// State returns the latest full snapshot, nil before the first one.
func (c *Controller) State() (*room.State, room.Derived) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.derived
}

// ChatMessages returns the local chat cache.
func (c *Controller) ChatMessages() []room.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]room.ChatMessage(nil), c.chat...)
}

// HasVoted reports whether this client voted on the current story.
func (c *Controller) HasVoted() bool {
	return c.MyVote() != ""
}

// MyVote returns this client's vote for the current story, if any.
func (c *Controller) MyVote() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil || c.clientID == "" || c.state.CurrentStoryID == "" {
		return ""
	}
	return c.state.VotesByStory[c.state.CurrentStoryID][c.clientID]
}

// CurrentVotes returns all votes for the current story; raw values are
// only meaningful once the phase leaves voting.
func (c *Controller) CurrentVotes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil || c.state.CurrentStoryID == "" {
		return map[string]string{}
	}
	votes := make(map[string]string, len(c.state.VotesByStory[c.state.CurrentStoryID]))
	for id, v := range c.state.VotesByStory[c.state.CurrentStoryID] {
		votes[id] = v
	}
	return votes
}

// DeckValues returns the vote values the current deck permits.
func (c *Controller) DeckValues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	return room.DeckValues(c.state.Deck)
}
