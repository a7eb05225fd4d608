package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pointdeck/pointdeck-server/internal/room"
)

// readLimit is a transport guard well above the protocol's 4096-byte
// cap: oversized-but-readable frames get a protocol error while the
// connection stays open, instead of a hard close.
const readLimit = 64 * 1024

// errSessionEnded signals that the actor force-closed the session.
var errSessionEnded = errors.New("session ended")

// WSHandler upgrades HTTP connections and bridges them to a room actor
// session.
type WSHandler struct {
	hub *room.Hub
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *room.Hub, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: logger}
}

// Handle serves GET /api/rooms/:id/ws.
func (h *WSHandler) Handle(c *gin.Context) {
	roomID := c.Param("id")
	if !roomIDPattern.MatchString(roomID) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	actor, err := h.hub.Get(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to get room actor")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(readLimit)

	sess := room.NewSession(uuid.NewString())
	actor.Attach(sess)
	defer actor.Detach(sess.ID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, actor, sess)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	if errors.Is(err, errSessionEnded) {
		conn.Close(websocket.StatusNormalClosure, sess.CloseReason())
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			h.log.Warn().Err(err).Str("client_id", sess.ID).Msg("ws connection closed with error")
		}
	}
	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, actor *room.Actor, sess *room.Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		// Size checks, rate limiting, and parsing all happen on the
		// actor so responses keep mutation order.
		actor.Deliver(sess.ID, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *room.Session) error {
	for {
		select {
		case payload := <-sess.Outbound():
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return err
			}
		case <-sess.Done():
			// Flush anything queued ahead of the close, the finished
			// notice in particular.
			for {
				select {
				case payload := <-sess.Outbound():
					if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
						return err
					}
				default:
					return errSessionEnded
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
