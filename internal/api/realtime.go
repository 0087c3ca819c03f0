package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pulseboard/pulseboard/internal/logger"
)

const (
	wsRateLimitPerWindow = 10
	wsRateLimitBurst     = 5
	wsRateLimitWindow    = 1 * time.Minute
)

var realtimeUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Validate Origin against Host to prevent cross-site websocket
		// hijacking. Non-browser clients may omit Origin; those pass.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// initRealtimeRoutes registers the dashboard websocket endpoint.
func (c *Controller) initRealtimeRoutes() {
	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      wsRateLimitPerWindow,
				Burst:     wsRateLimitBurst,
				ExpiresIn: wsRateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many connection attempts, please wait before trying again",
			})
		},
	}

	c.Group.GET("/realtime/ws", c.HandleRealtimeWS, middleware.RateLimiterWithConfig(rateLimiterConfig))
}

// HandleRealtimeWS upgrades the connection and hands it to the hub. The
// session lives until the peer disconnects or the hub drops it.
func (c *Controller) HandleRealtimeWS(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	conn, err := realtimeUpgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.log.Error("failed to upgrade realtime websocket", logger.Error(err))
		return err
	}

	c.hub.Register(tenant, conn)
	return nil
}
