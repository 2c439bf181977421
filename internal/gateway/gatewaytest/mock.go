// Package gatewaytest provides a testify mock of gateway.Gateway.
package gatewaytest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketpay/internal/gateway"
)

type Mock struct {
	mock.Mock
}

var _ gateway.Gateway = (*Mock)(nil)

func (m *Mock) CreateAccount(ctx context.Context, p gateway.AccountParams) (*gateway.Account, error) {
	args := m.Called(ctx, p)
	acc, _ := args.Get(0).(*gateway.Account)
	return acc, args.Error(1)
}

func (m *Mock) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	args := m.Called(ctx, accountID, returnURL, refreshURL)
	return args.String(0), args.Error(1)
}

func (m *Mock) CreateCheckoutSession(ctx context.Context, p gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, p)
	s, _ := args.Get(0).(*gateway.CheckoutSession)
	return s, args.Error(1)
}

func (m *Mock) CreateAuthorization(ctx context.Context, p gateway.SplitParams) (*gateway.Authorization, error) {
	args := m.Called(ctx, p)
	a, _ := args.Get(0).(*gateway.Authorization)
	return a, args.Error(1)
}

func (m *Mock) GetAuthorization(ctx context.Context, id string) (*gateway.Authorization, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*gateway.Authorization)
	return a, args.Error(1)
}

func (m *Mock) CaptureAuthorization(ctx context.Context, id, idempotencyKey string) (*gateway.Authorization, error) {
	args := m.Called(ctx, id, idempotencyKey)
	a, _ := args.Get(0).(*gateway.Authorization)
	return a, args.Error(1)
}

func (m *Mock) CreateTransfer(ctx context.Context, p gateway.TransferParams) (*gateway.Transfer, error) {
	args := m.Called(ctx, p)
	t, _ := args.Get(0).(*gateway.Transfer)
	return t, args.Error(1)
}
