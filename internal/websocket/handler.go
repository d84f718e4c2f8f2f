package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/middleware"
	"github.com/iliyamo/queueease/internal/notify"
)

// Handler upgrades authenticated requests to live-push connections.
type Handler struct {
	registry *notify.Registry
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(registry *notify.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logging.Component("ws"),
	}
}

// Serve is mounted behind JWTAuth; the connection belongs to the token's
// subject for its whole life.
func (h *Handler) Serve(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug().Err(err).Msg("upgrade")
		return nil
	}
	client := NewClient(userID, conn, h.log)
	unregister := h.registry.Register(userID, client)
	h.log.Info().Uint64("user_id", userID).Str("conn_id", client.ID()).Msg("connected")
	client.Run(unregister)
	h.log.Info().Uint64("user_id", userID).Str("conn_id", client.ID()).Msg("disconnected")
	return nil
}
