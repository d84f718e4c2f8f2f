package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queueease/internal/engine"
	"github.com/iliyamo/queueease/internal/middleware"
	"github.com/iliyamo/queueease/internal/notify"
)

// QueueHandler serves the customer and public queue endpoints.
type QueueHandler struct {
	Engine   *engine.Engine
	Services ServiceLister
	Limit    int
}

func NewQueueHandler(e *engine.Engine, services ServiceLister, limit int) *QueueHandler {
	return &QueueHandler{Engine: e, Services: services, Limit: limit}
}

type joinReq struct {
	UserID    uint64 `json:"user_id"`
	ServiceID uint64 `json:"service_id" validate:"required,gt=0"`
}

// Join puts the caller at the back of the queue.
func (h *QueueHandler) Join(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req joinReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if req.UserID != 0 && req.UserID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot join on behalf of another user"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := h.Engine.Join(ctx, uid, req.ServiceID)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ticket":      res.Ticket,
		"queue_size":  len(res.Queue),
		"ahead_of_me": res.Ticket.Position - 1,
	})
}

// Mine lists the caller's tickets, newest first.
func (h *QueueHandler) Mine(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	ts, err := h.Engine.TicketsOf(ctx, uid, queryLimit(c, h.Limit))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, ts)
}

// Position reports where the caller's active ticket stands.
func (h *QueueHandler) Position(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := h.Engine.ActiveFor(ctx, uid)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ticket_id": t.ID,
		"status":    t.Status,
		"position":  t.Position,
		"ahead":     t.Position - 1,
	})
}

// Cancel cancels one of the caller's own tickets.
func (h *QueueHandler) Cancel(c echo.Context) error {
	uid, _ := middleware.UserID(c)
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := h.Engine.CancelOwn(ctx, uid, id)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, res.Ticket)
}

// Live returns the public view of the active queue.
func (h *QueueHandler) Live(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	q, err := h.Engine.Snapshot(ctx)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"size": len(q), "queue": notify.QueueView(q)})
}

// ListServices returns the service catalog.
func (h *QueueHandler) ListServices(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	svcs, err := h.Services.Services(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list services failed"})
	}
	return c.JSON(http.StatusOK, svcs)
}
