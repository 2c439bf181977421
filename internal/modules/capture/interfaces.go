package capture

import (
	"context"

	"github.com/google/uuid"

	"marketpay/internal/domain"
	"marketpay/internal/gateway"
	"marketpay/internal/repository"
)

type bookingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.Booking, error)
	UpdatePaymentStatus(ctx context.Context, bookingID uuid.UUID, status domain.PaymentStatus) (bool, error)
}

type accountReader interface {
	GetByRecipientID(ctx context.Context, recipientID uuid.UUID) (*domain.ConnectedAccount, error)
}

type paymentWriter interface {
	SetStatus(ctx context.Context, authorizationID string, status domain.PaymentStatus, failureReason string) (bool, error)
}

type settlementRepo interface {
	RecordCapture(ctx context.Context, rec repository.CaptureRecord) (*domain.Invoice, *domain.Payment, error)
	LoadCapture(ctx context.Context, authorizationID string) (*domain.Payment, *domain.Invoice, error)
	LoadCaptureByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, *domain.Invoice, error)
}

type captureGateway interface {
	GetAuthorization(ctx context.Context, id string) (*gateway.Authorization, error)
	CaptureAuthorization(ctx context.Context, id, idempotencyKey string) (*gateway.Authorization, error)
	CreateTransfer(ctx context.Context, p gateway.TransferParams) (*gateway.Transfer, error)
}
