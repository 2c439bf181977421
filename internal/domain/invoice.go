package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceUnpaid   InvoiceStatus = "unpaid"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceRefunded InvoiceStatus = "refunded"
)

type Invoice struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNumber   string        `gorm:"type:varchar(32);not null;uniqueIndex" json:"invoice_number"`
	BookingID       uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	PayerID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"payer_id"`
	RecipientID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Subtotal        int64         `gorm:"not null" json:"subtotal"`
	PlatformFee     int64         `gorm:"not null" json:"platform_fee"`
	Total           int64         `gorm:"not null" json:"total"`
	RecipientPayout int64         `gorm:"not null" json:"recipient_payout"`
	Currency        string        `gorm:"type:varchar(3);not null" json:"currency"`
	Status          InvoiceStatus `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"status"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) BeforeCreate(_ *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// InvoiceSequence is the per-month counter behind invoice numbers.
type InvoiceSequence struct {
	Period    string `gorm:"type:varchar(6);primaryKey"`
	LastValue int64  `gorm:"not null;default:0"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }

func InvoicePeriod(t time.Time) string {
	return t.UTC().Format("200601")
}

// FormatInvoiceNumber renders INV-YYYYMM-NNNN.
func FormatInvoiceNumber(period string, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", period, seq)
}
