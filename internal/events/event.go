// Package events fans settlement status changes out to Kafka for the
// notification layer and to connected browsers over websockets.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	CheckoutStarted  Type = "checkout_started"
	PaymentSucceeded Type = "payment_succeeded"
	PaymentCaptured  Type = "payment_captured"
	PaymentFailed    Type = "payment_failed"
	PaymentCancelled Type = "payment_cancelled"
	PaymentRefunded  Type = "payment_refunded"
	PayoutPending    Type = "payout_pending"
	TransferAttached Type = "transfer_attached"
	TransferReversed Type = "transfer_reversed"
	AccountUpdated   Type = "account_updated"
	PayoutPaid       Type = "payout_paid"
	PayoutFailed     Type = "payout_failed"
)

// SettlementEvent is the message published for every settlement transition.
type SettlementEvent struct {
	Type            Type      `json:"type"`
	BookingID       uuid.UUID `json:"booking_id,omitempty"`
	PayerID         uuid.UUID `json:"payer_id,omitempty"`
	RecipientID     uuid.UUID `json:"recipient_id,omitempty"`
	AuthorizationID string    `json:"authorization_id,omitempty"`
	InvoiceNumber   string    `json:"invoice_number,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Status          string    `json:"status,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Key partitions events by booking so consumers see them in order.
func (e SettlementEvent) Key() string {
	if e.BookingID != uuid.Nil {
		return e.BookingID.String()
	}
	if e.RecipientID != uuid.Nil {
		return e.RecipientID.String()
	}
	return e.AuthorizationID
}

// Publisher delivers settlement events. Implementations are best-effort;
// callers log failures and never roll back on them.
type Publisher interface {
	Publish(ctx context.Context, ev SettlementEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, SettlementEvent) error { return nil }
