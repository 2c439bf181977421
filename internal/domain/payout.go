package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutFailed  PayoutStatus = "failed"
)

// Payout mirrors a gateway payout from a connected account to its bank.
type Payout struct {
	ID                uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	PayoutID          string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"payout_id"`
	ExternalAccountID string       `gorm:"type:varchar(255);not null;index" json:"external_account_id"`
	RecipientID       *uuid.UUID   `gorm:"type:uuid;index" json:"recipient_id,omitempty"`
	Amount            int64        `gorm:"not null;default:0" json:"amount"`
	Currency          string       `gorm:"type:varchar(3)" json:"currency"`
	Status            PayoutStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	FailureReason     string       `gorm:"type:text" json:"failure_reason,omitempty"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

func (p *Payout) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
