package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queueease/internal/middleware"
	"github.com/iliyamo/queueease/internal/notify"
)

// NotificationHandler serves the caller's notification history.
type NotificationHandler struct {
	Dispatcher *notify.Dispatcher
	Limit      int
}

func NewNotificationHandler(d *notify.Dispatcher, limit int) *NotificationHandler {
	return &NotificationHandler{Dispatcher: d, Limit: limit}
}

// Mine returns targeted and broadcast notifications, newest first.
func (h *NotificationHandler) Mine(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	notes, err := h.Dispatcher.History(ctx, uid, queryLimit(c, h.Limit))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load notifications failed"})
	}
	return c.JSON(http.StatusOK, notes)
}
