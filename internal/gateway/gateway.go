// Package gateway is the narrow port to the payment processor. Services depend
// on the Gateway interface; the Stripe client lives in stripe.go.
package gateway

import "context"

// Authorization statuses the settlement flow branches on.
const (
	StatusRequiresCapture = "requires_capture"
	StatusSucceeded       = "succeeded"
	StatusCanceled        = "canceled"
	StatusProcessing      = "processing"
)

// Metadata keys embedded in every checkout and transfer.
const (
	MetaBookingID       = "booking_id"
	MetaPayerID         = "client_id"
	MetaRecipientID     = "freelancer_id"
	MetaPlatformFee     = "platform_fee"
	MetaAuthorizationID = "payment_intent_id"
	MetaUserID          = "user_id"
)

type AccountParams struct {
	RecipientID string
	Email       string
	Country     string
}

type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// SplitParams describes a manual-capture authorization routed to a connected
// account with the platform fee withheld.
type SplitParams struct {
	Amount             int64
	Currency           string
	PlatformFee        int64
	DestinationAccount string
	Description        string
	PayerEmail         string
	TransferGroup      string
	Metadata           map[string]string
}

type CheckoutParams struct {
	SplitParams
	ProductName string
	SuccessURL  string
	CancelURL   string
	ReferenceID string
}

type CheckoutSession struct {
	ID  string
	URL string
	// AuthorizationID is empty when the gateway only creates the intent once
	// the payer completes the hosted page.
	AuthorizationID string
}

type Authorization struct {
	ID               string
	Status           string
	Amount           int64
	AmountCapturable int64
	AmountReceived   int64
	Currency         string
	ClientSecret     string
	ChargeID         string
	// TransferID is set when the gateway already moved funds to the
	// destination account as part of the charge.
	TransferID string
	Metadata   map[string]string
}

type TransferParams struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	SourceChargeID     string
	TransferGroup      string
	Metadata           map[string]string
	IdempotencyKey     string
}

type Transfer struct {
	ID string
}

type Gateway interface {
	CreateAccount(ctx context.Context, p AccountParams) (*Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	CreateAuthorization(ctx context.Context, p SplitParams) (*Authorization, error)
	GetAuthorization(ctx context.Context, id string) (*Authorization, error)
	CaptureAuthorization(ctx context.Context, id, idempotencyKey string) (*Authorization, error)
	CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error)
}
