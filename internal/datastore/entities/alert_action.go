package entities

import "strings"

// AlertAction defines a delivery target for an alert rule. Type selects the
// channel; the remaining fields are channel-specific payload. Recipients and
// PhoneNumbers are comma-separated lists.
type AlertAction struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	RuleID       uint   `gorm:"not null;index" json:"rule_id"`
	Type         string `gorm:"size:32;not null" json:"type"`
	Recipients   string `gorm:"size:1000;default:''" json:"recipients"`
	PhoneNumbers string `gorm:"size:1000;default:''" json:"phone_numbers"`
	URL          string `gorm:"size:500;default:''" json:"url"`
	TemplateID   string `gorm:"size:100;default:''" json:"template_id"`
	DelayMin     int    `gorm:"default:0" json:"delay_min"`
	SortOrder    int    `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (AlertAction) TableName() string {
	return "alert_actions"
}

// RecipientList splits Recipients into trimmed addresses.
func (a *AlertAction) RecipientList() []string {
	return splitList(a.Recipients)
}

// PhoneList splits PhoneNumbers into trimmed numbers.
func (a *AlertAction) PhoneList() []string {
	return splitList(a.PhoneNumbers)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
