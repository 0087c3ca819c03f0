package api

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/optin"
)

// initOptInRoutes registers SMS consent endpoints. The inbound webhook is
// what the SMS carrier calls when a subscriber texts the service number.
func (c *Controller) initOptInRoutes() {
	group := c.Group.Group("/sms")

	group.GET("/optin/:phone", c.GetOptInStatus)
	group.POST("/optin", c.OptInPhone)
	group.POST("/optout", c.OptOutPhone)
	group.POST("/inbound", c.HandleInboundSMS)
}

type optInPayload struct {
	PhoneNumber string `json:"phone_number"`
	Source      string `json:"source"`
}

// GetOptInStatus returns the consent state for a phone number.
func (c *Controller) GetOptInStatus(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	phone := ctx.Param("phone")
	status, err := c.optIns.Status(ctx.Request().Context(), phone, tenant)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to look up opt-in status", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]string{
		"phone_number": phone,
		"status":       status,
	})
}

// OptInPhone records consent for a phone number.
func (c *Controller) OptInPhone(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	var payload optInPayload
	if err := ctx.Bind(&payload); err != nil || payload.PhoneNumber == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "phone_number is required"})
	}
	if payload.Source == "" {
		payload.Source = "api"
	}

	if err := c.optIns.OptIn(ctx.Request().Context(), payload.PhoneNumber, tenant, payload.Source); err != nil {
		return c.HandleError(ctx, err, "Failed to record opt-in", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "opted_in"})
}

// OptOutPhone revokes consent for a phone number.
func (c *Controller) OptOutPhone(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	var payload optInPayload
	if err := ctx.Bind(&payload); err != nil || payload.PhoneNumber == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "phone_number is required"})
	}
	if payload.Source == "" {
		payload.Source = "api"
	}

	if err := c.optIns.OptOut(ctx.Request().Context(), payload.PhoneNumber, tenant, payload.Source); err != nil {
		return c.HandleError(ctx, err, "Failed to record opt-out", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "opted_out"})
}

// twiml is the XML reply envelope the carrier expects from an inbound
// message webhook. An empty Message element suppresses the auto-reply.
type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// HandleInboundSMS processes the carrier's inbound-message webhook.
// The carrier POSTs form-encoded From/Body fields; the tenant rides on the
// webhook URL's tenant_id query parameter configured per messaging number.
func (c *Controller) HandleInboundSMS(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	from := ctx.FormValue("From")
	body := ctx.FormValue("Body")
	if from == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "From is required"})
	}

	result, err := c.optIns.HandleInboundKeyword(ctx.Request().Context(), from, tenant, body)
	if err != nil {
		// The carrier retries on 5xx. Consent writes are idempotent, so a
		// retry is safe.
		return c.HandleError(ctx, err, "Failed to process inbound SMS", http.StatusInternalServerError)
	}

	if result.Action != optin.KeywordActionNone {
		c.log.Info("inbound SMS keyword processed",
			logger.String("tenant_id", tenant),
			logger.String("action", result.Action))
	}

	return ctx.XML(http.StatusOK, twiml{Message: result.ResponseText})
}
