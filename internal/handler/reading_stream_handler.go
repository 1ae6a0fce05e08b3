package handler

import (
	"tarot-room-be/internal/pkg/logger"
	"tarot-room-be/internal/pkg/serverutils"
	"tarot-room-be/internal/service"
	internalWS "tarot-room-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type ReadingStreamHandler struct {
	sessions service.IReadingSessionService
	hub      *internalWS.Hub
	logger   logger.ILogger
}

func NewReadingStreamHandler(sessions service.IReadingSessionService, hub *internalWS.Hub, log logger.ILogger) *ReadingStreamHandler {
	return &ReadingStreamHandler{
		sessions: sessions,
		hub:      hub,
		logger:   log,
	}
}

// ServeWs upgrades to the change stream of an active session.
func (h *ReadingStreamHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := c.Params("id")
	session, err := h.sessions.Get(c.UserContext(), sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return serverutils.NewAppError(fiber.StatusNotFound, "session not found or inactive")
	}

	caller := serverutils.Caller(c)
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ReadingStreamHandler", "Starting session stream", map[string]interface{}{"session_id": sessionID, "caller_id": caller.ID})
		internalWS.ServeWs(h.hub, conn, sessionID, caller)
		h.logger.Info("ReadingStreamHandler", "Session stream ended", map[string]interface{}{"session_id": sessionID, "caller_id": caller.ID})
	})(c)
}

// RegisterRoutes mounts the stream next to the reading API. middleware must
// resolve the caller.
func (h *ReadingStreamHandler) RegisterRoutes(router fiber.Router, middleware ...fiber.Handler) {
	ws := router.Group("/reading/v1/ws")
	for _, m := range middleware {
		ws.Use(m)
	}
	ws.Get("/sessions/:id", h.ServeWs)
}
