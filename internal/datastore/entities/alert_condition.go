package entities

import "strings"

// AlertCondition defines a single condition within an alert rule.
// All conditions in a rule use AND logic. For keyword_detection with a
// contains/not_contains operator, Value holds a comma-separated keyword
// list; for the regex operator it holds the pattern; for custom it holds
// a restricted boolean expression.
type AlertCondition struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RuleID    uint   `gorm:"not null;index" json:"rule_id"`
	Type      string `gorm:"size:32;not null" json:"type"`
	Field     string `gorm:"size:100;not null" json:"field"`
	Operator  string `gorm:"size:20;not null" json:"operator"`
	Value     string `gorm:"size:500;not null" json:"value"`
	WindowMin int    `gorm:"default:0" json:"window_min"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (AlertCondition) TableName() string {
	return "alert_conditions"
}

// Keywords splits Value into a trimmed, lower-cased keyword list.
func (c *AlertCondition) Keywords() []string {
	parts := strings.Split(c.Value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if kw := strings.ToLower(strings.TrimSpace(p)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
