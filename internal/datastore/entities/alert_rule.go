package entities

import "time"

// AlertRule defines a tenant-configurable alerting rule. Rules match
// incoming feedback against conditions (AND semantics) and dispatch actions.
type AlertRule struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	TenantID        string           `gorm:"size:64;not null;index" json:"tenant_id"`
	Name            string           `gorm:"size:255;not null" json:"name"`
	Description     string           `gorm:"size:1000;default:''" json:"description"`
	Enabled         bool             `gorm:"not null;index" json:"enabled"`
	BuiltIn         bool             `gorm:"not null;default:false" json:"built_in"`
	Priority        string           `gorm:"size:16;not null;default:'medium'" json:"priority"`
	CooldownMin     int              `gorm:"not null;default:30" json:"cooldown_min"`
	LastTriggeredAt *time.Time       `json:"last_triggered_at"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Conditions      []AlertCondition `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"conditions"`
	Actions         []AlertAction    `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"actions"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}
