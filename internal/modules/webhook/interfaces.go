package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"marketpay/internal/domain"
)

type verifier interface {
	Verify(payload []byte, header string) (stripe.Event, error)
}

type eventLedger interface {
	Record(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, reason string) error
}

type accountRepo interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.ConnectedAccount, error)
	SyncCapabilities(ctx context.Context, externalID string, recipientID *uuid.UUID, chargesEnabled, payoutsEnabled, detailsSubmitted bool) (*domain.ConnectedAccount, error)
}

type bookingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.Booking, error)
	AttachAuthorization(ctx context.Context, bookingID uuid.UUID, authorizationID string) (bool, error)
	UpdatePaymentStatus(ctx context.Context, bookingID uuid.UUID, status domain.PaymentStatus) (bool, error)
}

type paymentRepo interface {
	GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.Payment, error)
	GetByChargeID(ctx context.Context, chargeID string) (*domain.Payment, error)
	UpsertPending(ctx context.Context, p *domain.Payment) error
	SetStatus(ctx context.Context, authorizationID string, status domain.PaymentStatus, failureReason string) (bool, error)
	SetChargeID(ctx context.Context, authorizationID, chargeID string) error
	AttachTransfer(ctx context.Context, authorizationID, transferID string, at time.Time) (bool, error)
	AttachTransferByCharge(ctx context.Context, chargeID, transferID string, at time.Time) (bool, error)
	UpsertTransfer(ctx context.Context, p *domain.Payment) error
}

type invoiceRepo interface {
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Invoice, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
}

type payoutRepo interface {
	Upsert(ctx context.Context, p *domain.Payout) error
}
