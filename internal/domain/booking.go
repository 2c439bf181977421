package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "unpaid"
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCaptured  PaymentStatus = "captured"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PreservedStatuses lists the current statuses that an event-driven write of
// next must leave untouched. Refunds always apply.
func PreservedStatuses(next PaymentStatus) []PaymentStatus {
	switch next {
	case PaymentRefunded:
		return nil
	case PaymentCaptured:
		return []PaymentStatus{PaymentRefunded}
	case PaymentSucceeded:
		return []PaymentStatus{PaymentCaptured, PaymentRefunded}
	case PaymentFailed, PaymentCancelled:
		return []PaymentStatus{PaymentSucceeded, PaymentCaptured, PaymentRefunded}
	default:
		return []PaymentStatus{PaymentSucceeded, PaymentCaptured, PaymentRefunded, PaymentFailed, PaymentCancelled}
	}
}

// Booking is the slice of the marketplace booking that settlement reads and
// writes. The booking workflow itself lives outside this service.
type Booking struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	PayerID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"payer_id"`
	RecipientID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Title             string        `gorm:"type:varchar(255)" json:"title,omitempty"`
	GrossAmount       int64         `gorm:"not null;default:0" json:"gross_amount"`
	Currency          string        `gorm:"type:varchar(3);not null;default:'aud'" json:"currency"`
	Status            BookingStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentStatus     PaymentStatus `gorm:"type:varchar(20);not null;default:'unpaid';index" json:"payment_status"`
	AuthorizationID   *string       `gorm:"type:varchar(255);index" json:"authorization_id,omitempty"`
	CheckoutSessionID *string       `gorm:"type:varchar(255)" json:"checkout_session_id,omitempty"`
	InvoiceID         *uuid.UUID    `gorm:"type:uuid" json:"invoice_id,omitempty"`
	PayoutPending     bool          `gorm:"not null;default:false" json:"payout_pending"`
	PaymentCapturedAt *time.Time    `json:"payment_captured_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentSucceeded || b.PaymentStatus == PaymentCaptured
}

// SettledStatuses are the payment statuses after which a booking never takes
// another checkout or capture.
func SettledStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentSucceeded, PaymentCaptured, PaymentRefunded}
}

// IsSettled reports whether funds for the booking were already taken, even if
// later refunded.
func (b *Booking) IsSettled() bool {
	return b.IsPaid() || b.PaymentStatus == PaymentRefunded || b.InvoiceID != nil
}

func (b *Booking) IsParty(userID uuid.UUID) bool {
	return b.PayerID == userID || b.RecipientID == userID
}
