package alerting

import (
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
)

// TriggerResult is the outcome of one rule firing for one feedback event.
// Results are ephemeral: created per evaluation pass and handed to the
// dispatcher.
type TriggerResult struct {
	Triggered         bool      `json:"triggered"`
	RuleID            uint      `json:"rule_id"`
	RuleName          string    `json:"rule_name"`
	TenantID          string    `json:"tenant_id"`
	Severity          string    `json:"severity"`
	Message           string    `json:"message"`
	MatchedConditions []string  `json:"matched_conditions"`
	FeedbackID        uint      `json:"feedback_id"`
	CustomerName      string    `json:"customer_name"`
	Rating            int       `json:"rating"`
	Timestamp         time.Time `json:"timestamp"`
}

// deriveSeverity maps rule priority to a baseline severity, then applies the
// rating override: when a rating_threshold condition on the overall rating
// matched, a rating of 2 or below is critical and exactly 3 is a warning.
// The override takes precedence over the priority baseline.
func deriveSeverity(rule *entities.AlertRule, event *FeedbackEvent, matched []entities.AlertCondition) string {
	severity := prioritySeverity(rule.Priority)

	for i := range matched {
		cond := &matched[i]
		if cond.Type != ConditionRatingThreshold {
			continue
		}
		if cond.Field != "" && cond.Field != FieldOverallRating {
			continue
		}
		switch {
		case event.Rating <= 2:
			severity = SeverityCritical
		case event.Rating == 3:
			severity = SeverityWarning
		}
		break
	}
	return severity
}

func prioritySeverity(priority string) string {
	switch priority {
	case PriorityCritical:
		return SeverityCritical
	case PriorityHigh, PriorityMedium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// renderMessage produces the human-readable alert text.
func renderMessage(rule *entities.AlertRule, event *FeedbackEvent) string {
	customer := event.CustomerName
	if customer == "" {
		customer = "A customer"
	}
	msg := fmt.Sprintf("%s: %s left a %d/5 rating", rule.Name, customer, event.Rating)
	if event.Text != "" {
		msg += fmt.Sprintf(" %q", truncate(event.Text, 140))
	}
	return msg
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
