// Package alerting provides the feedback alerting rules engine.
package alerting

// Condition types define how a rule condition is evaluated.
const (
	ConditionRatingThreshold  = "rating_threshold"
	ConditionKeywordDetection = "keyword_detection"
	ConditionVolumeBased      = "volume_based"
	ConditionTimeBased        = "time_based"
	ConditionCustom           = "custom"
)

// Condition operators define how field values are compared.
const (
	OperatorEquals         = "equals"
	OperatorNotEquals      = "not_equals"
	OperatorGreaterThan    = "greater_than"
	OperatorLessThan       = "less_than"
	OperatorGreaterOrEqual = "greater_or_equal"
	OperatorLessOrEqual    = "less_or_equal"
	OperatorContains       = "contains"
	OperatorNotContains    = "not_contains"
	OperatorRegex          = "regex"
)

// Rule priorities order rules by operational importance.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Alert severities classify a fired alert for display and routing.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Action types identify the delivery channel for a rule action.
const (
	ActionEmail        = "email"
	ActionSMS          = "sms"
	ActionWebhook      = "webhook"
	ActionNotification = "notification"
	ActionEscalation   = "escalation"
)

// ValidConditionType reports whether t is a known condition type.
func ValidConditionType(t string) bool {
	switch t {
	case ConditionRatingThreshold, ConditionKeywordDetection,
		ConditionVolumeBased, ConditionTimeBased, ConditionCustom:
		return true
	}
	return false
}

// ValidActionType reports whether t is a known action type.
func ValidActionType(t string) bool {
	switch t {
	case ActionEmail, ActionSMS, ActionWebhook, ActionNotification, ActionEscalation:
		return true
	}
	return false
}

// Field names identify feedback attributes available for condition evaluation.
const (
	FieldOverallRating = "overall_rating"
	FieldFeedbackText  = "feedback_text"
	FieldCustomerName  = "customer_name"
	FieldCustomerEmail = "customer_email"
	FieldHasVoice      = "has_voice"
	FieldHasImage      = "has_image"
	FieldLocationID    = "location_id"
	FieldQRCodeID      = "qr_code_id"
)
