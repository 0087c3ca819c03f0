package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pulseboard/pulseboard/internal/alerting"
	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/observability/metrics"
)

// feedbackPayload is the ingestion request body.
type feedbackPayload struct {
	Rating        int    `json:"rating"`
	Text          string `json:"text"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	HasVoice      bool   `json:"has_voice"`
	HasImage      bool   `json:"has_image"`
	LocationID    string `json:"location_id"`
	QRCodeID      string `json:"qr_code_id"`
}

func (p *feedbackPayload) toEvent(tenantID string, feedbackID uint) *alerting.FeedbackEvent {
	return &alerting.FeedbackEvent{
		FeedbackID:    feedbackID,
		TenantID:      tenantID,
		Rating:        p.Rating,
		Text:          p.Text,
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		HasVoice:      p.HasVoice,
		HasImage:      p.HasImage,
		LocationID:    p.LocationID,
		QRCodeID:      p.QRCodeID,
		Timestamp:     time.Now(),
	}
}

// initFeedbackRoutes registers the ingestion endpoint.
func (c *Controller) initFeedbackRoutes() {
	c.Group.POST("/feedback", c.IngestFeedback)
}

// IngestFeedback stores a feedback submission and hands it to the alerting
// pipeline. Alert evaluation is asynchronous: the submitter gets 201 as
// soon as the row is stored, and alerting failures never surface here.
func (c *Controller) IngestFeedback(ctx echo.Context) error {
	tenant, ok := c.requireTenant(ctx)
	if !ok {
		return nil
	}

	var payload feedbackPayload
	if err := ctx.Bind(&payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if payload.Rating < 1 || payload.Rating > 5 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Rating must be between 1 and 5"})
	}

	fb := &entities.Feedback{
		TenantID:      tenant,
		Rating:        payload.Rating,
		Text:          payload.Text,
		CustomerName:  payload.CustomerName,
		CustomerEmail: payload.CustomerEmail,
		HasVoice:      payload.HasVoice,
		HasImage:      payload.HasImage,
		LocationID:    payload.LocationID,
		QRCodeID:      payload.QRCodeID,
	}
	if err := c.feedbackRepo.Create(ctx.Request().Context(), fb); err != nil {
		return c.HandleError(ctx, err, "Failed to store feedback", http.StatusInternalServerError)
	}

	metrics.FeedbackIngested.Inc()

	event := payload.toEvent(tenant, fb.ID)
	if c.bus != nil {
		c.bus.Publish(event)
	}
	if c.hub != nil {
		c.hub.BroadcastFeedback(tenant, fb)
	}

	c.log.Debug("feedback ingested",
		logger.String("tenant_id", tenant),
		logger.Uint64("feedback_id", uint64(fb.ID)),
		logger.Int("rating", fb.Rating))

	return ctx.JSON(http.StatusCreated, map[string]any{
		"id":         fb.ID,
		"created_at": fb.CreatedAt,
	})
}
