package domain

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent records every verified gateway event by its id so redeliveries
// short-circuit and failed ones can be replayed.
type WebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	EventID         string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	AccountID       string         `gorm:"type:varchar(255)" json:"account_id,omitempty"`
	Payload         datatypes.JSON `json:"payload"`
	Attempts        int            `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt     *time.Time     `gorm:"index" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
