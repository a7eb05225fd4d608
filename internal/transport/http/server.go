// Package http exposes the REST and WebSocket surfaces of the
// coordinator: room creation, snapshot fetch, and the live channel.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pointdeck/pointdeck-server/internal/config"
	"github.com/pointdeck/pointdeck-server/internal/room"
)

// NewServer builds the HTTP server with all routes registered.
func NewServer(hub *room.Hub, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery(), CORSMiddleware(cfg.AllowedOrigins))

	handlers := NewHandlers(hub, cfg, logger)
	wsHandler := NewWSHandler(hub, logger)

	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	{
		api.POST("/rooms", handlers.CreateRoom)
		api.GET("/rooms/:id/state", handlers.RoomState)
		api.GET("/rooms/:id/ws", wsHandler.Handle)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
