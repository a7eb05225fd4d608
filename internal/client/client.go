// Package client implements the room connection controller: it keeps a
// session resilient across network flaps with exponential backoff,
// defers retries while the app is hidden or offline, and replays the
// local view from full snapshots.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pointdeck/pointdeck-server/internal/proto"
	"github.com/pointdeck/pointdeck-server/internal/room"
)

// Status is the connection state machine value.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	// StatusWaiting means a reconnect is deferred until the app is
	// visible again or the network comes back.
	StatusWaiting Status = "waiting"
)

// Quality is a coarse connection classification derived from
// consecutive reconnect attempts, not measured latency.
type Quality string

const (
	QualityUnknown  Quality = "unknown"
	QualityGood     Quality = "good"
	QualityDegraded Quality = "degraded"
	QualityPoor     Quality = "poor"
)

const (
	baseDelay      = time.Second
	maxDelay       = 30 * time.Second
	maxAttempts    = 15
	connectTimeout = 10 * time.Second

	terminalErrorMessage = "Connection lost. Please refresh the page to reconnect."
)

// ErrNotConnected is returned when sending without a live channel.
var ErrNotConnected = errors.New("not connected")

// ErrNotHost is returned from host actions when no secret is held.
var ErrNotHost = errors.New("room secret required for host actions")

// Callbacks are invoked from the controller's read goroutine.
type Callbacks struct {
	OnState        func(state *room.State, derived room.Derived)
	OnChat         func(msg room.ChatMessage)
	OnError        func(message string)
	OnConnect      func()
	OnDisconnect   func()
	OnFinished     func(reason string)
	OnReconnecting func(attempt, maxAttempts int)
}

// Options configure a Controller.
type Options struct {
	// BaseURL is the WebSocket endpoint base, e.g. "ws://localhost:8080".
	BaseURL string
	RoomID  string
	// RoomSecret enables host actions when set.
	RoomSecret string
	Callbacks  Callbacks
}

// StatusInfo is a point-in-time view of the connection.
type StatusInfo struct {
	Status      Status
	Quality     Quality
	Attempt     int
	MaxAttempts int
}

// Controller maintains one client's connection to a room.
type Controller struct {
	baseURL    string
	roomID     string
	roomSecret string
	cb         Callbacks

	mu           sync.Mutex
	conn         *websocket.Conn
	cancelRead   context.CancelFunc
	clientID     string
	state        *room.State
	derived      room.Derived
	chat         []room.ChatMessage
	status       Status
	quality      Quality
	attempts     int
	wasConnected bool
	visible      bool
	online       bool
	pending      bool
	finished     bool
	closed       bool
	timer        *time.Timer
	lastActivity time.Time

	jitter func() float64
}

// New builds a controller; call Connect to establish the channel.
func New(opts Options) *Controller {
	return &Controller{
		baseURL:    opts.BaseURL,
		roomID:     opts.RoomID,
		roomSecret: opts.RoomSecret,
		cb:         opts.Callbacks,
		status:     StatusDisconnected,
		quality:    QualityUnknown,
		visible:    true,
		online:     true,
		jitter:     rand.Float64,
	}
}

// IsHost reports whether this controller holds the room secret.
func (c *Controller) IsHost() bool {
	return c.roomSecret != ""
}

// ClientID returns the server-assigned client id, empty before hello.
func (c *Controller) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Connect establishes the channel. Safe to call repeatedly; attempts
// already in flight are not duplicated.
func (c *Controller) Connect() {
	c.mu.Lock()
	if c.closed || c.finished || c.conn != nil || c.status == StatusConnecting {
		c.mu.Unlock()
		return
	}
	if !c.online {
		c.pending = true
		c.status = StatusWaiting
		c.mu.Unlock()
		return
	}

	reconnecting := c.wasConnected
	if reconnecting {
		c.status = StatusReconnecting
	} else {
		c.status = StatusConnecting
	}
	attempt := c.attempts
	c.mu.Unlock()

	if reconnecting && c.cb.OnReconnecting != nil {
		c.cb.OnReconnecting(attempt, maxAttempts)
	}

	go c.dial()
}

// Disconnect closes the channel cleanly and stops reconnection.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	cancel := c.cancelRead
	c.conn = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "user disconnect")
	}
}

// SetVisible tells the controller whether the app is in the
// foreground. Becoming visible fires any deferred reconnect.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	fire := visible && c.pending
	if fire {
		c.pending = false
	}
	c.mu.Unlock()

	if fire {
		c.scheduleReconnect()
	}
}

// SetOnline tells the controller whether the network is reachable. A
// recovery while previously connected resets the attempt counter and
// retries immediately: a network-level signal beats a blind timer.
func (c *Controller) SetOnline(online bool) {
	c.mu.Lock()
	c.online = online
	retry := online && c.conn == nil && c.wasConnected && !c.closed && !c.finished
	if retry {
		c.attempts = 0
		c.pending = false
	}
	c.mu.Unlock()

	if retry {
		c.Connect()
	}
}

// Status returns the current connection status.
func (c *Controller) Status() StatusInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return StatusInfo{
		Status:      c.status,
		Quality:     c.quality,
		Attempt:     c.attempts,
		MaxAttempts: maxAttempts,
	}
}

func (c *Controller) dial() {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("%s/api/rooms/%s/ws", c.baseURL, c.roomID), nil)
	cancel()
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}
	conn.SetReadLimit(-1)

	readCtx, cancelRead := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancelRead()
		conn.Close(websocket.StatusNormalClosure, "user disconnect")
		return
	}
	c.conn = conn
	c.cancelRead = cancelRead
	c.status = StatusConnected
	c.quality = QualityGood
	c.wasConnected = true
	c.attempts = 0
	c.lastActivity = time.Now()
	c.mu.Unlock()

	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}

	go c.readLoop(readCtx, conn)
}

func (c *Controller) readLoop(ctx context.Context, conn *websocket.Conn) {
	var readErr error
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			readErr = err
			break
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		c.handleMessage(data)
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.cancelRead = nil
		c.status = StatusDisconnected
	}
	closed := c.closed
	finished := c.finished
	c.mu.Unlock()

	if c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}

	if closed || finished {
		return
	}

	// Clean closes and explicit session-end codes do not trigger a
	// reconnect; everything else does.
	switch websocket.CloseStatus(readErr) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	c.scheduleReconnect()
}

func (c *Controller) handleMessage(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return
	}

	switch head.Type {
	case proto.TypeHello:
		var msg proto.Hello
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.clientID = msg.ClientID
		c.mu.Unlock()

	case proto.TypeState:
		var msg room.StateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.state = msg.State
		c.derived = msg.Derived
		// Resync the chat cache from full snapshots.
		if msg.State != nil && len(msg.State.ChatMessages) > 0 {
			c.chat = append([]room.ChatMessage(nil), msg.State.ChatMessages...)
		}
		c.mu.Unlock()
		if c.cb.OnState != nil {
			c.cb.OnState(msg.State, msg.Derived)
		}

	case proto.TypeError:
		var msg proto.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if c.cb.OnError != nil {
			c.cb.OnError(msg.Message)
		}

	case proto.TypeChat:
		var msg room.ChatBroadcast
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.chat = append(c.chat, msg.Message)
		if len(c.chat) > room.MaxChatMessages {
			c.chat = c.chat[len(c.chat)-room.MaxChatMessages:]
		}
		c.mu.Unlock()
		if c.cb.OnChat != nil {
			c.cb.OnChat(msg.Message)
		}

	case proto.TypeFinished:
		var msg proto.Finished
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.finished = true
		c.mu.Unlock()
		if c.cb.OnFinished != nil {
			c.cb.OnFinished(msg.Reason)
		}
	}
}

func (c *Controller) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.finished {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if c.attempts >= maxAttempts {
		c.status = StatusDisconnected
		c.quality = QualityPoor
		c.mu.Unlock()
		if c.cb.OnError != nil {
			c.cb.OnError(terminalErrorMessage)
		}
		return
	}

	if !c.visible || !c.online {
		c.pending = true
		c.status = StatusWaiting
		c.mu.Unlock()
		return
	}

	switch {
	case c.attempts >= 5:
		c.quality = QualityPoor
	case c.attempts >= 2:
		c.quality = QualityDegraded
	}

	delay := BackoffDelay(c.attempts, c.jitter)
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.attempts++
		c.timer = nil
		c.mu.Unlock()
		c.Connect()
	})
	c.mu.Unlock()
}

// BackoffDelay returns the reconnect delay for an attempt: exponential
// from 1s capped at 30s, with ±25% jitter so clients sharing an outage
// do not retry in lockstep. jitter yields uniform values in [0,1).
func BackoffDelay(attempt int, jitter func() float64) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	delay += delay * 0.25 * (jitter()*2 - 1)
	return time.Duration(delay)
}
