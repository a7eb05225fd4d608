package http

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pointdeck/pointdeck-server/internal/config"
	"github.com/pointdeck/pointdeck-server/internal/room"
)

// roomIDPattern restricts room ids on the URL surface.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// Handlers provides the REST endpoints around the room hub.
type Handlers struct {
	hub      *room.Hub
	throttle *ipThrottle
	log      *zerolog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(hub *room.Hub, cfg config.Config, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		hub:      hub,
		throttle: newIPThrottle(cfg.CreateRoomPerMinute),
		log:      logger,
	}
}

// CreateRoomResponse carries the credentials for a fresh room. The
// secret is shown once and never recoverable thereafter.
type CreateRoomResponse struct {
	RoomID     string `json:"roomId"`
	RoomSecret string `json:"roomSecret"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports liveness.
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CreateRoom initializes a new room.
// POST /api/rooms
func (h *Handlers) CreateRoom(c *gin.Context) {
	if !h.throttle.allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many rooms created, slow down"})
		return
	}

	roomID, roomSecret, err := h.hub.CreateRoom(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, CreateRoomResponse{RoomID: roomID, RoomSecret: roomSecret})
}

// RoomState returns the current snapshot for a room.
// GET /api/rooms/:id/state
func (h *Handlers) RoomState(c *gin.Context) {
	roomID := c.Param("id")
	if !roomIDPattern.MatchString(roomID) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	snapshot, err := h.hub.Snapshot(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to load snapshot")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
