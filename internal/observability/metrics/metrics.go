// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsTriggered counts fired alert rules by severity.
	AlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "alerting",
		Name:      "alerts_triggered_total",
		Help:      "Number of alert rules fired, by severity.",
	}, []string{"severity"})

	// Deliveries counts delivery attempts by channel and outcome.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Number of delivery attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// QueueDepth tracks the number of active items per delivery queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulseboard",
		Subsystem: "notify",
		Name:      "queue_depth",
		Help:      "Number of items currently held by a delivery queue.",
	}, []string{"channel"})

	// SMSBlocked counts SMS sends skipped because the recipient lacked consent.
	SMSBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "notify",
		Name:      "sms_blocked_total",
		Help:      "Number of SMS sends skipped for non-opted-in numbers.",
	})

	// RealtimeSessions tracks currently connected websocket sessions.
	RealtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulseboard",
		Subsystem: "realtime",
		Name:      "sessions",
		Help:      "Number of connected realtime sessions.",
	})

	// FeedbackIngested counts accepted feedback submissions.
	FeedbackIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "ingest",
		Name:      "feedback_total",
		Help:      "Number of feedback submissions accepted.",
	})
)
