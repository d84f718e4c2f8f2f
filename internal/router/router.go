// Package router mounts every HTTP route on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/queueease/internal/config"
	"github.com/iliyamo/queueease/internal/handler"
	"github.com/iliyamo/queueease/internal/middleware"
	"github.com/iliyamo/queueease/internal/model"
	"github.com/iliyamo/queueease/internal/websocket"
)

// Deps bundles the handlers and shared clients routes are built from.
type Deps struct {
	JWTSecret     string
	Redis         *redis.Client // nil disables rate limiting and caching
	RateLimit     config.RateLimitConfig
	Cache         config.CacheConfig
	DB            handler.Pinger
	Auth          *handler.AuthHandler
	Queue         *handler.QueueHandler
	Notifications *handler.NotificationHandler
	Admin         *handler.AdminHandler
	WS            *websocket.Handler
}

// RegisterRoutes mounts health, metrics and every /v1 group.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	RegisterAuth(e, d.Auth, d.JWTSecret)
	RegisterPublic(e, d)
	RegisterUser(e, d)
	RegisterAdmin(e, d)
}

// RegisterAuth mounts token issuance under /v1/auth and /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// refresh rotates the refresh token, refresh-access keeps it
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin))
}

// RegisterPublic mounts the unauthenticated reads.
func RegisterPublic(e *echo.Echo, d Deps) {
	e.GET("/v1/services", d.Queue.ListServices, middleware.NewRedisCache(d.Cache, d.Redis))
	e.GET("/v1/queue", d.Queue.Live)
}

// RegisterUser mounts the customer endpoints.  Admins may use them too.
func RegisterUser(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(model.RoleUser, model.RoleAdmin))

	g.POST("/queue/tickets", d.Queue.Join, middleware.NewTokenBucket(d.RateLimit, d.Redis))
	g.GET("/queue/tickets/mine", d.Queue.Mine)
	g.GET("/queue/position", d.Queue.Position)
	g.DELETE("/queue/tickets/:id", d.Queue.Cancel)
	g.GET("/notifications", d.Notifications.Mine)
	g.GET("/ws", d.WS.Serve)
}

// RegisterAdmin mounts the counter staff endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, d Deps) {
	g := e.Group("/v1/admin", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(model.RoleAdmin))
	a := d.Admin

	g.GET("/queue", a.Queue)
	g.GET("/queue/current", a.Current)
	g.GET("/queue/history", a.History)
	g.GET("/queue/stats", a.Stats)
	g.POST("/queue/notify-next", a.NotifyNext)

	g.POST("/tickets", a.CreateTicket)
	g.PUT("/tickets/:id/status", a.SetStatus)
	g.POST("/tickets/:id/:action", a.Action)

	g.POST("/notifications", a.Notify)
	g.POST("/notifications/broadcast", a.Broadcast)
	g.GET("/notifications", a.Notifications)
	g.GET("/audit", a.AuditTrail)
}
