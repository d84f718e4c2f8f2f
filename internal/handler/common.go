// Package handler implements the HTTP endpoints.  Handlers translate
// requests into engine and dispatcher calls and map their error kinds onto
// status codes; no queue rule lives here.
package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queueease/internal/engine"
	"github.com/iliyamo/queueease/internal/logging"
	"github.com/iliyamo/queueease/internal/model"
)

const requestTimeout = 5 * time.Second

// UserStore is the account lookup used by auth and admin handlers.
type UserStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	Exists(ctx context.Context, id uint64) (bool, error)
}

// TokenStore persists refresh-token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// ServiceLister reads the service catalog.
type ServiceLister interface {
	Services(ctx context.Context) ([]model.Service, error)
}

// AuditReader reads the audit trail.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// Validator adapts go-playground/validator to echo.  Field errors are
// reported under their json names.
type Validator struct{ v *validator.Validate }

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i interface{}) error { return cv.v.Struct(i) }

// bind decodes and validates the body.  When ok is false the 400
// response has been written and err is what the handler should return.
func bind(c echo.Context, req interface{}) (ok bool, err error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
			return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}

// writeEngineError maps engine error kinds onto HTTP responses.
func writeEngineError(c echo.Context, err error) error {
	var (
		conflict   *engine.ConflictError
		notFound   *engine.NotFoundError
		transition *engine.InvalidTransitionError
		storage    *engine.StorageError
	)
	switch {
	case errors.As(err, &conflict):
		body := echo.Map{"error": conflict.Error()}
		if conflict.TicketID != 0 {
			body["ticket_id"] = conflict.TicketID
		}
		return c.JSON(http.StatusConflict, body)
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": notFound.Error()})
	case errors.As(err, &transition):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":     transition.Error(),
			"ticket_id": transition.TicketID,
			"current":   transition.From,
			"attempted": transition.To,
		})
	case errors.Is(err, engine.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.As(err, &storage):
		logging.Error().Err(err).Str("op", storage.Op).Str("route", c.Path()).Msg("storage failure")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	logging.Error().Err(err).Str("route", c.Path()).Msg("unhandled error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func queryLimit(c echo.Context, def int) int {
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
