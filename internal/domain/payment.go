package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payment is the ledger row for one gateway authorization. AuthorizationID is
// the idempotency key for every write.
type Payment struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID       *uuid.UUID    `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	BookingID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"booking_id"`
	AuthorizationID string        `gorm:"type:varchar(255);not null;uniqueIndex" json:"authorization_id"`
	ChargeID        *string       `gorm:"type:varchar(255);index" json:"charge_id,omitempty"`
	TransferID      *string       `gorm:"type:varchar(255)" json:"transfer_id,omitempty"`
	PayerID         uuid.UUID     `gorm:"type:uuid;index" json:"payer_id"`
	RecipientID     uuid.UUID     `gorm:"type:uuid;index" json:"recipient_id"`
	Amount          int64         `gorm:"not null;default:0" json:"amount"`
	PlatformFee     int64         `gorm:"not null;default:0" json:"platform_fee"`
	RecipientAmount int64         `gorm:"not null;default:0" json:"recipient_amount"`
	Currency        string        `gorm:"type:varchar(3);not null" json:"currency"`
	Status          PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FailureReason   string        `gorm:"type:text" json:"failure_reason,omitempty"`
	CapturedAt      *time.Time    `json:"captured_at,omitempty"`
	TransferredAt   *time.Time    `json:"transferred_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
