package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pulseboard/pulseboard/internal/notify"
)

// initQueueRoutes registers delivery queue introspection endpoints.
func (c *Controller) initQueueRoutes() {
	group := c.Group.Group("/deliveries")

	group.GET("/stats", c.GetQueueStats)
	group.GET("/status/:message_id", c.GetDeliveryStatus)
	group.DELETE("/email/:id", c.CancelEmailDelivery)
	group.DELETE("/sms/:id", c.CancelSMSDelivery)
}

// GetQueueStats returns a snapshot of both delivery queues.
func (c *Controller) GetQueueStats(ctx echo.Context) error {
	stats := make([]notify.QueueStats, 0, 2)
	if c.emailQueue != nil {
		stats = append(stats, c.emailQueue.Stats())
	}
	if c.smsQueue != nil {
		stats = append(stats, c.smsQueue.Stats())
	}
	return ctx.JSON(http.StatusOK, map[string]any{"queues": stats})
}

// GetDeliveryStatus returns the recorded outcome of one delivery attempt.
// Statuses age out after the retention window.
func (c *Controller) GetDeliveryStatus(ctx echo.Context) error {
	id := ctx.Param("message_id")
	status, ok := c.statuses.Get(id)
	if !ok {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "No delivery status for this message ID"})
	}
	return ctx.JSON(http.StatusOK, status)
}

// CancelEmailDelivery cancels a pending queued email. Items already being
// processed cannot be cancelled.
func (c *Controller) CancelEmailDelivery(ctx echo.Context) error {
	return cancelQueueItem(ctx, c.emailQueue)
}

// CancelSMSDelivery cancels a pending queued SMS.
func (c *Controller) CancelSMSDelivery(ctx echo.Context) error {
	return cancelQueueItem(ctx, c.smsQueue)
}

func cancelQueueItem[T any](ctx echo.Context, q *notify.Queue[T]) error {
	if q == nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Queue not configured"})
	}
	id := ctx.Param("id")
	if !q.Cancel(id) {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "Item is not pending"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}
