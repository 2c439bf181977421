package checkout

import (
	"context"

	"github.com/google/uuid"

	"marketpay/internal/domain"
	"marketpay/internal/gateway"
)

type bookingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	MarkCheckoutStarted(ctx context.Context, bookingID uuid.UUID, authorizationID, sessionID *string) error
}

type paymentRepo interface {
	UpsertPending(ctx context.Context, p *domain.Payment) error
}

type accountReader interface {
	GetByRecipientID(ctx context.Context, recipientID uuid.UUID) (*domain.ConnectedAccount, error)
}

type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, p gateway.CheckoutParams) (*gateway.CheckoutSession, error)
	CreateAuthorization(ctx context.Context, p gateway.SplitParams) (*gateway.Authorization, error)
}
