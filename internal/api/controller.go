// Package api exposes the HTTP surface: feedback ingestion, alert rule
// management, SMS consent, realtime websocket sessions, and queue
// introspection.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulseboard/pulseboard/internal/alerting"
	"github.com/pulseboard/pulseboard/internal/conf"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/notify"
	"github.com/pulseboard/pulseboard/internal/optin"
	"github.com/pulseboard/pulseboard/internal/realtime"
)

const (
	// TenantHeader carries the tenant scope for every API call.
	TenantHeader = "X-Tenant-ID"

	QueryValueTrue = "true"
)

// Controller wires the HTTP routes to the service objects. All
// collaborators are injected; the controller holds no globals.
type Controller struct {
	Echo  *echo.Echo
	Group *echo.Group

	settings     *conf.Settings
	log          logger.Logger
	ruleRepo     repository.AlertRuleRepository
	feedbackRepo repository.FeedbackRepository
	engine       *alerting.Engine
	bus          *alerting.EventBus
	hub          *realtime.Hub
	optIns       *optin.Registry
	statuses     *notify.StatusStore
	emailQueue   *notify.Queue[notify.EmailRequest]
	smsQueue     *notify.Queue[notify.SMSRequest]
}

// ControllerDeps bundles the collaborators a Controller needs.
type ControllerDeps struct {
	Settings     *conf.Settings
	Log          logger.Logger
	RuleRepo     repository.AlertRuleRepository
	FeedbackRepo repository.FeedbackRepository
	Engine       *alerting.Engine
	Bus          *alerting.EventBus
	Hub          *realtime.Hub
	OptIns       *optin.Registry
	Statuses     *notify.StatusStore
	EmailQueue   *notify.Queue[notify.EmailRequest]
	SMSQueue     *notify.Queue[notify.SMSRequest]
}

// New creates the controller and registers all routes on e under /api/v1.
func New(e *echo.Echo, deps ControllerDeps) *Controller {
	c := &Controller{
		Echo:         e,
		Group:        e.Group("/api/v1"),
		settings:     deps.Settings,
		log:          deps.Log,
		ruleRepo:     deps.RuleRepo,
		feedbackRepo: deps.FeedbackRepo,
		engine:       deps.Engine,
		bus:          deps.Bus,
		hub:          deps.Hub,
		optIns:       deps.OptIns,
		statuses:     deps.Statuses,
		emailQueue:   deps.EmailQueue,
		smsQueue:     deps.SMSQueue,
	}

	e.Use(middleware.Recover())
	e.GET("/healthz", c.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	c.initFeedbackRoutes()
	c.initRuleRoutes()
	c.initOptInRoutes()
	c.initRealtimeRoutes()
	c.initQueueRoutes()

	return c
}

// Healthz reports process liveness.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleError logs err and writes a uniform JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	c.log.Error(message, logger.Error(err), logger.String("path", ctx.Path()))
	return ctx.JSON(code, map[string]string{"error": message})
}

// tenantID extracts the tenant scope from the request. The header wins;
// a tenant_id query parameter is accepted for websocket clients that
// cannot set headers.
func (c *Controller) tenantID(ctx echo.Context) string {
	if t := ctx.Request().Header.Get(TenantHeader); t != "" {
		return t
	}
	return ctx.QueryParam("tenant_id")
}

// requireTenant resolves the tenant scope or writes a 400 response.
func (c *Controller) requireTenant(ctx echo.Context) (string, bool) {
	tenant := c.tenantID(ctx)
	if tenant == "" {
		_ = ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "Missing tenant: set the " + TenantHeader + " header",
		})
		return "", false
	}
	return tenant, true
}

// contextWithTimeout derives a bounded context from the request context.
func contextWithTimeout(ctx echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request().Context(), d)
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
