package connect

import (
	"context"

	"github.com/google/uuid"

	"marketpay/internal/domain"
	"marketpay/internal/gateway"
)

type accountRepo interface {
	Create(ctx context.Context, a *domain.ConnectedAccount) error
	GetByRecipientID(ctx context.Context, recipientID uuid.UUID) (*domain.ConnectedAccount, error)
}

type accountGateway interface {
	CreateAccount(ctx context.Context, p gateway.AccountParams) (*gateway.Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
}
