package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger is anything whose liveness /healthz reports.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers "ok" while the database (when configured) responds.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := withTimeout(c)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "error": "database unreachable"})
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
