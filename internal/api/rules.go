package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pulseboard/pulseboard/internal/alerting"
	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/logger"
)

const (
	maxHistoryLimit     = 200
	defaultHistoryLimit = 50
)

// initRuleRoutes registers alert rule management endpoints.
func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/alerts")

	rules.GET("/rules", c.ListAlertRules)
	rules.GET("/rules/:id", c.GetAlertRule)
	rules.POST("/rules", c.CreateAlertRule)
	rules.PUT("/rules/:id", c.UpdateAlertRule)
	rules.PATCH("/rules/:id/toggle", c.ToggleAlertRule)
	rules.DELETE("/rules/:id", c.DeleteAlertRule)
	rules.POST("/rules/:id/test", c.TestAlertRule)
	rules.GET("/history", c.ListAlertHistory)
}

// ListAlertRules returns the tenant's alert rules, optionally filtered.
func (c *Controller) ListAlertRules(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	filter := repository.AlertRuleFilter{
		TenantID: tenant,
		Priority: ctx.QueryParam("priority"),
	}
	if enabledParam := ctx.QueryParam("enabled"); enabledParam != "" {
		v := enabledParam == QueryValueTrue
		filter.Enabled = &v
	}
	if builtInParam := ctx.QueryParam("built_in"); builtInParam != "" {
		v := builtInParam == QueryValueTrue
		filter.BuiltIn = &v
	}

	rules, err := c.ruleRepo.ListRules(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert rules", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetAlertRule returns a single alert rule by ID.
func (c *Controller) GetAlertRule(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	rule, ok, err := c.tenantRule(ctx, tenant)
	if err != nil || !ok {
		return err
	}
	return ctx.JSON(http.StatusOK, rule)
}

// CreateAlertRule creates a new alert rule for the tenant.
func (c *Controller) CreateAlertRule(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	var rule entities.AlertRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	rule.TenantID = tenant
	rule.BuiltIn = false

	if msg := validateRule(&rule); msg != "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	// Prevent duplicate names within the tenant
	count, err := c.ruleRepo.CountRulesByName(ctx.Request().Context(), tenant, rule.Name)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create alert rule", http.StatusInternalServerError)
	}
	if count > 0 {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "A rule with this name already exists"})
	}

	if err := c.ruleRepo.CreateRule(ctx.Request().Context(), &rule); err != nil {
		return c.HandleError(ctx, err, "Failed to create alert rule", http.StatusInternalServerError)
	}

	c.refreshAlertEngine(ctx)

	c.log.Info("alert rule created",
		logger.String("tenant_id", tenant),
		logger.String("name", rule.Name),
		logger.Uint64("id", uint64(rule.ID)))

	return ctx.JSON(http.StatusCreated, rule)
}

// UpdateAlertRule replaces an existing alert rule.
func (c *Controller) UpdateAlertRule(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	existing, ok, err := c.tenantRule(ctx, tenant)
	if err != nil || !ok {
		return err
	}

	var rule entities.AlertRule
	if err := ctx.Bind(&rule); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	rule.TenantID = tenant

	if msg := validateRule(&rule); msg != "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	rule.ID = existing.ID
	rule.BuiltIn = existing.BuiltIn
	rule.CreatedAt = existing.CreatedAt

	if err := c.ruleRepo.UpdateRule(ctx.Request().Context(), &rule); err != nil {
		return c.HandleError(ctx, err, "Failed to update alert rule", http.StatusInternalServerError)
	}

	c.refreshAlertEngine(ctx)

	return ctx.JSON(http.StatusOK, rule)
}

// ToggleAlertRule enables or disables an alert rule.
func (c *Controller) ToggleAlertRule(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	rule, ok, err := c.tenantRule(ctx, tenant)
	if err != nil || !ok {
		return err
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.ruleRepo.ToggleRule(ctx.Request().Context(), rule.ID, body.Enabled); err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
		}
		return c.HandleError(ctx, err, "Failed to toggle alert rule", http.StatusInternalServerError)
	}

	c.refreshAlertEngine(ctx)

	return ctx.JSON(http.StatusOK, map[string]any{"id": rule.ID, "enabled": body.Enabled})
}

// DeleteAlertRule deletes an alert rule.
func (c *Controller) DeleteAlertRule(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	rule, ok, err := c.tenantRule(ctx, tenant)
	if err != nil || !ok {
		return err
	}

	if err := c.ruleRepo.DeleteRule(ctx.Request().Context(), rule.ID); err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
		}
		return c.HandleError(ctx, err, "Failed to delete alert rule", http.StatusInternalServerError)
	}

	c.refreshAlertEngine(ctx)

	return ctx.NoContent(http.StatusNoContent)
}

// TestAlertRule evaluates a rule against a sample feedback payload without
// recording history or sending notifications.
func (c *Controller) TestAlertRule(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	rule, ok, err := c.tenantRule(ctx, tenant)
	if err != nil || !ok {
		return err
	}

	var body feedbackPayload
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	event := body.toEvent(tenant, 0)
	result := c.engine.TestRule(ctx.Request().Context(), rule, event)

	return ctx.JSON(http.StatusOK, result)
}

// ListAlertHistory returns paginated alert firing history for the tenant.
func (c *Controller) ListAlertHistory(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	filter := repository.AlertHistoryFilter{
		TenantID: tenant,
		Limit:    defaultHistoryLimit,
	}

	if ruleIDParam := ctx.QueryParam("rule_id"); ruleIDParam != "" {
		v, err := strconv.ParseUint(ruleIDParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		filter.RuleID = uint(v)
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		v, err := strconv.Atoi(limitParam)
		if err == nil && v > 0 {
			filter.Limit = min(v, maxHistoryLimit)
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		v, err := strconv.Atoi(offsetParam)
		if err == nil && v >= 0 {
			filter.Offset = v
		}
	}

	items, total, err := c.ruleRepo.ListHistory(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert history", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// tenantRule loads the rule in the :id route parameter and checks it
// belongs to the tenant. A rule owned by another tenant reads as not found.
// The bool reports whether the caller should proceed.
func (c *Controller) tenantRule(ctx echo.Context, tenant string) (*entities.AlertRule, bool, error) {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return nil, false, ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.ruleRepo.GetRule(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAlertRuleNotFound) {
			return nil, false, ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
		}
		return nil, false, c.HandleError(ctx, err, "Failed to get alert rule", http.StatusInternalServerError)
	}
	if rule.TenantID != tenant {
		return nil, false, ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert rule not found"})
	}
	return rule, true, nil
}

// validateRule checks rule fields. Returns an error message or "".
func validateRule(rule *entities.AlertRule) string {
	if rule.Name == "" {
		return "Rule name is required"
	}
	if len(rule.Conditions) == 0 {
		return "At least one condition is required"
	}
	for i := range rule.Conditions {
		if !alerting.ValidConditionType(rule.Conditions[i].Type) {
			return "Unknown condition type: " + rule.Conditions[i].Type
		}
	}
	for i := range rule.Actions {
		if !alerting.ValidActionType(rule.Actions[i].Type) {
			return "Unknown action type: " + rule.Actions[i].Type
		}
	}
	return ""
}

// refreshAlertEngine refreshes the engine's rule cache after a mutation.
func (c *Controller) refreshAlertEngine(ctx echo.Context) {
	if c.engine == nil {
		return
	}
	refreshCtx, cancel := contextWithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.engine.RefreshRules(refreshCtx); err != nil {
		c.log.Error("failed to refresh alert engine rules", logger.Error(err))
	}
}
