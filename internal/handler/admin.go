package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queueease/internal/engine"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/middleware"
	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/notify"
)

// AdminHandler serves the counter staff endpoints.
type AdminHandler struct {
	Engine     *engine.Engine
	Dispatcher *notify.Dispatcher
	Users      UserStore
	Audit      AuditReader // nil: audit endpoint returns an empty list
	Limit      int
}

type statusReq struct {
	Status string `json:"status" validate:"required,oneof=waiting in-progress completed canceled"`
}

type adminJoinReq struct {
	UserID    uint64 `json:"user_id" validate:"required,gt=0"`
	ServiceID uint64 `json:"service_id" validate:"required,gt=0"`
}

type notifyReq struct {
	UserID  uint64 `json:"user_id" validate:"required,gt=0"`
	Message string `json:"message" validate:"required,max=1000"`
}

type broadcastReq struct {
	Message string `json:"message" validate:"required,max=1000"`
}

// Queue returns the active queue including owners.
func (h *AdminHandler) Queue(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	q, err := h.Engine.Snapshot(ctx)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"size": len(q), "auto_promote": h.Engine.AutoPromote(), "queue": q})
}

// Current returns the ticket being served.
func (h *AdminHandler) Current(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := h.Engine.Current(ctx)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// History lists completed (default) or canceled tickets.
func (h *AdminHandler) History(c echo.Context) error {
	status := strings.TrimSpace(c.QueryParam("status"))
	if status == "" {
		status = model.StatusCompleted
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	ts, err := h.Engine.History(ctx, status, queryLimit(c, h.Limit))
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, ts)
}

func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	s, err := h.Engine.Stats(ctx)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// SetStatus moves a ticket to the requested status.
func (h *AdminHandler) SetStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var req statusReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	return h.transition(c, id, req.Status)
}

// Action applies prioritize, complete or cancel.
func (h *AdminHandler) Action(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	to, ok := engine.StatusForAction(c.Param("action"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown action"})
	}
	return h.transition(c, id, to)
}

func (h *AdminHandler) transition(c echo.Context, ticketID uint64, to string) error {
	actor, _ := middleware.UserID(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	res, err := h.Engine.Transition(ctx, actor, ticketID, to)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ticket":   res.Ticket,
		"from":     res.From,
		"promoted": res.Promoted,
		"queue":    res.Queue,
	})
}

// CreateTicket joins the queue on behalf of a user.
func (h *AdminHandler) CreateTicket(c echo.Context) error {
	var req adminJoinReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.requireUser(ctx, req.UserID); err != nil {
		return writeEngineError(c, err)
	}
	res, err := h.Engine.Join(ctx, req.UserID, req.ServiceID)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ticket": res.Ticket, "queue_size": len(res.Queue)})
}

// NotifyNext reminds the next waiting customer.
func (h *AdminHandler) NotifyNext(c echo.Context) error {
	actor, _ := middleware.UserID(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := h.Engine.NotifyNext(ctx, actor)
	if err != nil {
		return writeEngineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"notified_user_id": t.OwnerID, "ticket_id": t.ID, "position": t.Position})
}

// Notify sends a targeted message.
func (h *AdminHandler) Notify(c echo.Context) error {
	var req notifyReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.requireUser(ctx, req.UserID); err != nil {
		return writeEngineError(c, err)
	}
	n, err := h.Dispatcher.Notify(ctx, req.UserID, req.Message)
	if err != nil {
		logging.Error().Err(err).Msg("notify")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "notify failed"})
	}
	return c.JSON(http.StatusCreated, n)
}

// Broadcast sends a message to everyone.
func (h *AdminHandler) Broadcast(c echo.Context) error {
	var req broadcastReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	n, err := h.Dispatcher.Broadcast(ctx, req.Message)
	if err != nil {
		logging.Error().Err(err).Msg("broadcast")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "broadcast failed"})
	}
	actor, _ := middleware.UserID(c)
	h.Engine.PublishBroadcast(actor, req.Message)
	return c.JSON(http.StatusCreated, n)
}

// Notifications lists every notification, newest first.
func (h *AdminHandler) Notifications(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	notes, err := h.Dispatcher.All(ctx, queryLimit(c, h.Limit))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load notifications failed"})
	}
	return c.JSON(http.StatusOK, notes)
}

// AuditTrail lists the most recent audit rows.
func (h *AdminHandler) AuditTrail(c echo.Context) error {
	if h.Audit == nil {
		return c.JSON(http.StatusOK, []model.AuditLog{})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	rows, err := h.Audit.Recent(ctx, queryLimit(c, h.Limit))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load audit failed"})
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *AdminHandler) requireUser(ctx context.Context, id uint64) error {
	ok, err := h.Users.Exists(ctx, id)
	if err != nil {
		return &engine.StorageError{Op: "lookup user", Err: err}
	}
	if !ok {
		return &engine.NotFoundError{Kind: "user", ID: id}
	}
	return nil
}
