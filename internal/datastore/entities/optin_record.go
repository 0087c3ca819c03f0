package entities

import "time"

// Opt-in states for SMS consent.
const (
	OptInStatusOptedIn       = "opted_in"
	OptInStatusOptedOut      = "opted_out"
	OptInStatusNotRegistered = "not_registered"
)

// OptInRecord tracks SMS consent for a phone number within a tenant.
// Consent is a compliance record and is persisted across restarts.
type OptInRecord struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PhoneNumber string     `gorm:"size:32;not null;uniqueIndex:idx_optin_phone_tenant,priority:1" json:"phone_number"`
	TenantID    string     `gorm:"size:64;not null;uniqueIndex:idx_optin_phone_tenant,priority:2" json:"tenant_id"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	Source      string     `gorm:"size:64;default:''" json:"source"`
	OptedInAt   *time.Time `json:"opted_in_at"`
	OptedOutAt  *time.Time `json:"opted_out_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (OptInRecord) TableName() string {
	return "optin_records"
}
