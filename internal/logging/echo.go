package logging

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the request id in and out of the server.
const RequestIDHeader = "X-Request-ID"

// RequestLogger logs one line per request and propagates a request id.
// observe, when non-nil, receives method, route and status for metrics.
func RequestLogger(observe func(method, route string, status int)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, rid)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := Info()
			if status >= 500 {
				ev = Error().Err(err)
			}
			ev.Str("component", "http").
				Str("request_id", rid).
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Msg("request")
			if observe != nil {
				observe(req.Method, c.Path(), status)
			}
			return nil
		}
	}
}
