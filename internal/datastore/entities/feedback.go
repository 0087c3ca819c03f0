package entities

import "time"

// Feedback is a stored customer-feedback submission. Rows are written by the
// ingestion endpoint and read back by volume/time-based rule conditions.
type Feedback struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      string    `gorm:"size:64;not null;index:idx_feedback_tenant_created,priority:1" json:"tenant_id"`
	Rating        int       `gorm:"not null" json:"rating"`
	Text          string    `gorm:"type:text;default:''" json:"text"`
	CustomerName  string    `gorm:"size:255;default:''" json:"customer_name"`
	CustomerEmail string    `gorm:"size:255;default:''" json:"customer_email"`
	HasVoice      bool      `gorm:"not null;default:false" json:"has_voice"`
	HasImage      bool      `gorm:"not null;default:false" json:"has_image"`
	LocationID    string    `gorm:"size:64;default:''" json:"location_id"`
	QRCodeID      string    `gorm:"size:64;default:''" json:"qr_code_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_feedback_tenant_created,priority:2" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Feedback) TableName() string {
	return "feedback"
}
