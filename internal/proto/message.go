// Package proto defines the JSON wire protocol between clients and the
// room coordinator. Every client message is a single flat object with a
// "type" discriminator; server messages are typed envelopes.
package proto

// MaxMessageBytes is the hard cap on a single inbound frame. Larger
// frames are rejected with an error and otherwise ignored.
const MaxMessageBytes = 4096

// Client message types.
const (
	TypeJoin            = "join"
	TypeSetName         = "setName"
	TypeSetAvatar       = "setAvatar"
	TypeSetDeck         = "setDeck"
	TypeToggleFun       = "toggleFun"
	TypeAddStory        = "addStory"
	TypeEditStory       = "editStory"
	TypeUpdateNotes     = "updateNotes"
	TypeDeleteStory     = "deleteStory"
	TypeSetCurrentStory = "setCurrentStory"
	TypeVote            = "vote"
	TypeReveal          = "reveal"
	TypeLock            = "lock"
	TypeClearVotes      = "clearVotes"
	TypeNext            = "next"
	TypeChat            = "chat"
	TypeFinish          = "finish"
)

// Server message types.
const (
	TypeHello    = "hello"
	TypeState    = "state"
	TypeError    = "error"
	TypeFinished = "finished"
	// chat reuses TypeChat in both directions
)

// DeckDescriptor selects the voting scale.
type DeckDescriptor struct {
	Type   string   `json:"type"`
	Custom []string `json:"custom,omitempty"`
}

// ClientMessage is the union of all client-to-server messages. Fields
// are populated according to Type; unused fields stay zero.
type ClientMessage struct {
	Type string `json:"type"`

	Name       string          `json:"name,omitempty"`
	Avatar     string          `json:"avatar,omitempty"`
	Deck       *DeckDescriptor `json:"deck,omitempty"`
	FunMode    bool            `json:"funMode,omitempty"`
	Title      string          `json:"title,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	StoryID    string          `json:"storyId,omitempty"`
	Value      string          `json:"value,omitempty"`
	Text       string          `json:"text,omitempty"`
	RoomSecret string          `json:"roomSecret,omitempty"`
}

// Hello announces the assigned client identifier to one session.
type Hello struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// ErrorMessage reports a per-message failure; the connection stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Finished is the terminal notice before sessions are force-closed.
type Finished struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// NewHello builds a hello message.
func NewHello(clientID string) Hello {
	return Hello{Type: TypeHello, ClientID: clientID}
}

// NewError builds an error message.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// NewFinished builds a finished notice.
func NewFinished(reason string) Finished {
	return Finished{Type: TypeFinished, Reason: reason}
}
