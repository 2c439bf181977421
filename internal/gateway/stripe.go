package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"marketpay/internal/domain"
	"marketpay/internal/metrics"
)

// WebhookTolerance bounds the age of a signed webhook timestamp.
const WebhookTolerance = 5 * time.Minute

type StripeConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint, e.g. for stripe-mock.
	BaseURL string
}

// StripeGateway talks to Stripe with a bounded timeout and no transport
// retries; capture recovery goes through Resync instead.
type StripeGateway struct {
	api     *client.API
	metrics *metrics.Metrics
}

func NewStripeGateway(cfg StripeConfig, m *metrics.Metrics) *StripeGateway {
	if m == nil {
		m = metrics.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &StripeGateway{api: api, metrics: m}
}

func (g *StripeGateway) CreateAccount(ctx context.Context, p AccountParams) (*Account, error) {
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String(p.Country),
		Email:        stripe.String(p.Email),
		BusinessType: stripe.String(string(stripe.AccountBusinessTypeIndividual)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetaUserID, p.RecipientID)

	start := time.Now()
	acct, err := g.api.Accounts.New(params)
	g.metrics.ObserveGateway("account_create", start, err)
	if err != nil {
		return nil, mapError("create account", err)
	}
	return &Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

func (g *StripeGateway) CreateOnboardingLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	start := time.Now()
	link, err := g.api.AccountLinks.New(params)
	g.metrics.ObserveGateway("account_link_create", start, err)
	if err != nil {
		return "", mapError("create onboarding link", err)
	}
	return link.URL, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(p.ProductName),
						Description: optional(p.Description),
					},
					UnitAmount: stripe.Int64(p.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
			ApplicationFeeAmount: stripe.Int64(p.PlatformFee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(p.DestinationAccount),
			},
			TransferGroup: optional(p.TransferGroup),
			Metadata:      p.Metadata,
		},
		CustomerEmail:     optional(p.PayerEmail),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: optional(p.ReferenceID),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	start := time.Now()
	s, err := g.api.CheckoutSessions.New(params)
	g.metrics.ObserveGateway("checkout_session_create", start, err)
	if err != nil {
		return nil, mapError("create checkout session", err)
	}
	out := &CheckoutSession{ID: s.ID, URL: s.URL}
	if s.PaymentIntent != nil {
		out.AuthorizationID = s.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) CreateAuthorization(ctx context.Context, p SplitParams) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(p.Amount),
		Currency:             stripe.String(p.Currency),
		CaptureMethod:        stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		ApplicationFeeAmount: stripe.Int64(p.PlatformFee),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(p.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description:   optional(p.Description),
		ReceiptEmail:  optional(p.PayerEmail),
		TransferGroup: optional(p.TransferGroup),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	start := time.Now()
	pi, err := g.api.PaymentIntents.New(params)
	g.metrics.ObserveGateway("payment_intent_create", start, err)
	if err != nil {
		return nil, mapError("create payment intent", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	start := time.Now()
	pi, err := g.api.PaymentIntents.Get(id, params)
	g.metrics.ObserveGateway("payment_intent_get", start, err)
	if err != nil {
		return nil, mapError("get payment intent", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) CaptureAuthorization(ctx context.Context, id, idempotencyKey string) (*Authorization, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	start := time.Now()
	pi, err := g.api.PaymentIntents.Capture(id, params)
	g.metrics.ObserveGateway("payment_intent_capture", start, err)
	if err != nil {
		return nil, mapError("capture payment intent", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:            stripe.Int64(p.Amount),
		Currency:          stripe.String(p.Currency),
		Destination:       stripe.String(p.DestinationAccount),
		SourceTransaction: optional(p.SourceChargeID),
		TransferGroup:     optional(p.TransferGroup),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	start := time.Now()
	tr, err := g.api.Transfers.New(params)
	g.metrics.ObserveGateway("transfer_create", start, err)
	if err != nil {
		return nil, mapError("create transfer", err)
	}
	return &Transfer{ID: tr.ID}, nil
}

func toAuthorization(pi *stripe.PaymentIntent) *Authorization {
	a := &Authorization{
		ID:               pi.ID,
		Status:           string(pi.Status),
		Amount:           pi.Amount,
		AmountCapturable: pi.AmountCapturable,
		AmountReceived:   pi.AmountReceived,
		Currency:         string(pi.Currency),
		ClientSecret:     pi.ClientSecret,
		Metadata:         pi.Metadata,
	}
	if pi.LatestCharge != nil {
		a.ChargeID = pi.LatestCharge.ID
		if pi.LatestCharge.Transfer != nil {
			a.TransferID = pi.LatestCharge.Transfer.ID
		}
	}
	return a
}

// mapError folds Stripe failures into the two gateway sentinels. Anything
// that is not a definitive 4xx answer counts as unavailable.
func mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.Type == stripe.ErrorTypeAPI {
			return fmt.Errorf("%s: %w: %s", op, domain.ErrGatewayUnavailable, stripeErr.Msg)
		}
		return fmt.Errorf("%s: %w: %s (%s)", op, domain.ErrGatewayRejected, stripeErr.Msg, stripeErr.Code)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrGatewayUnavailable, err)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return stripe.String(s)
}

// SignatureVerifier checks the Stripe-Signature header of webhook deliveries.
type SignatureVerifier struct {
	secret string
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: secret}
}

func (v *SignatureVerifier) Verify(payload []byte, header string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" || v.secret == "" {
		return stripe.Event{}, domain.ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return ev, nil
}
