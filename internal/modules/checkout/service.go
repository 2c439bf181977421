package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketpay/internal/domain"
	"marketpay/internal/events"
	"marketpay/internal/gateway"
	"marketpay/internal/metrics"
	"marketpay/internal/modules/fee"
)

const (
	kindSession = "session"
	kindIntent  = "intent"
)

type StartCheckoutRequest struct {
	BookingID            uuid.UUID
	PayerID              uuid.UUID
	Amount               int64
	PayerEmail           string
	RecipientDisplayName string
	Description          string
	SuccessURL           string
	CancelURL            string
}

type CheckoutRedirect struct {
	SessionID       string
	RedirectURL     string
	AuthorizationID string
}

type CreateIntentRequest struct {
	BookingID   uuid.UUID
	PayerID     uuid.UUID
	Amount      int64
	PayerEmail  string
	Description string
}

type IntentResult struct {
	ClientSecret    string
	AuthorizationID string
	Amount          int64
	PlatformFee     int64
	RecipientAmount int64
	Currency        string
}

type Service struct {
	bookings        bookingRepo
	payments        paymentRepo
	accounts        accountReader
	gateway         checkoutGateway
	fees            *fee.Policy
	publisher       events.Publisher
	log             logrus.FieldLogger
	metrics         *metrics.Metrics
	defaultCurrency string
}

func NewService(
	bookings bookingRepo,
	payments paymentRepo,
	accounts accountReader,
	gw checkoutGateway,
	fees *fee.Policy,
	publisher events.Publisher,
	log logrus.FieldLogger,
	m *metrics.Metrics,
	defaultCurrency string,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		bookings:        bookings,
		payments:        payments,
		accounts:        accounts,
		gateway:         gw,
		fees:            fees,
		publisher:       publisher,
		log:             log,
		metrics:         m,
		defaultCurrency: strings.ToLower(defaultCurrency),
	}
}

// prepared is a booking that passed every checkout precondition.
type prepared struct {
	booking     *domain.Booking
	destination string
	currency    string
	split       fee.Breakdown
}

func (s *Service) prepare(ctx context.Context, bookingID, payerID uuid.UUID, amount int64) (*prepared, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PayerID != payerID {
		return nil, domain.ErrForbidden
	}
	if b.Status == domain.BookingCancelled {
		return nil, domain.ErrBookingCancelled
	}
	if b.IsSettled() {
		return nil, domain.ErrAlreadyPaid
	}
	if b.GrossAmount > 0 && b.GrossAmount != amount {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrAmountMismatch, b.GrossAmount, amount)
	}

	acc, err := s.accounts.GetByRecipientID(ctx, b.RecipientID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("load recipient account: %w", err)
	}
	if !acc.Payable() {
		return nil, domain.ErrRecipientNotPayable
	}

	split, err := s.fees.Split(amount)
	if err != nil {
		return nil, err
	}
	currency := strings.ToLower(b.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}
	return &prepared{booking: b, destination: acc.ExternalAccountID, currency: currency, split: split}, nil
}

func (p *prepared) splitParams(payerEmail, description string) gateway.SplitParams {
	b := p.booking
	return gateway.SplitParams{
		Amount:             p.split.Gross,
		Currency:           p.currency,
		PlatformFee:        p.split.PlatformFee,
		DestinationAccount: p.destination,
		Description:        description,
		PayerEmail:         payerEmail,
		TransferGroup:      "booking_" + b.ID.String(),
		Metadata: map[string]string{
			gateway.MetaBookingID:   b.ID.String(),
			gateway.MetaPayerID:     b.PayerID.String(),
			gateway.MetaRecipientID: b.RecipientID.String(),
			gateway.MetaPlatformFee: strconv.FormatInt(p.split.PlatformFee, 10),
		},
	}
}

func (p *prepared) pendingPayment(authorizationID string) *domain.Payment {
	return &domain.Payment{
		BookingID:       p.booking.ID,
		AuthorizationID: authorizationID,
		PayerID:         p.booking.PayerID,
		RecipientID:     p.booking.RecipientID,
		Amount:          p.split.Gross,
		PlatformFee:     p.split.PlatformFee,
		RecipientAmount: p.split.RecipientAmount,
		Currency:        p.currency,
	}
}

func (s *Service) publish(ctx context.Context, ev events.SettlementEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_type": ev.Type,
			"booking_id": ev.BookingID,
		}).Warn("settlement event not published")
	}
}

func (s *Service) count(kind string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayRejected):
		result = "gateway_error"
	case errors.Is(err, domain.ErrRecipientNotPayable), errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrBookingCancelled), errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrBookingNotFound):
		result = "rejected"
	default:
		result = "error"
	}
	s.metrics.CheckoutsTotal.WithLabelValues(kind, result).Inc()
}

// StartCheckout opens a hosted checkout page that places a manual-capture
// hold for the booking amount. No funds move until Capture.
func (s *Service) StartCheckout(ctx context.Context, req StartCheckoutRequest) (res *CheckoutRedirect, err error) {
	defer func() { s.count(kindSession, err) }()
	log := s.log.WithFields(logrus.Fields{"booking_id": req.BookingID, "payer_id": req.PayerID})

	p, err := s.prepare(ctx, req.BookingID, req.PayerID, req.Amount)
	if err != nil {
		return nil, err
	}

	productName := "Booking"
	if req.RecipientDisplayName != "" {
		productName = "Booking with " + req.RecipientDisplayName
	}
	description := req.Description
	if description == "" {
		description = p.booking.Title
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutParams{
		SplitParams: p.splitParams(req.PayerEmail, description),
		ProductName: productName,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		ReferenceID: p.booking.ID.String(),
	})
	if err != nil {
		log.WithError(err).Error("checkout session creation failed")
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	var authID *string
	if session.AuthorizationID != "" {
		authID = &session.AuthorizationID
	}
	if err := s.bookings.MarkCheckoutStarted(ctx, p.booking.ID, authID, &session.ID); err != nil {
		return nil, fmt.Errorf("mark checkout started: %w", err)
	}
	if authID != nil {
		if err := s.payments.UpsertPending(ctx, p.pendingPayment(*authID)); err != nil {
			return nil, fmt.Errorf("record pending payment: %w", err)
		}
	}

	s.publish(ctx, events.SettlementEvent{
		Type:            events.CheckoutStarted,
		BookingID:       p.booking.ID,
		PayerID:         p.booking.PayerID,
		RecipientID:     p.booking.RecipientID,
		AuthorizationID: session.AuthorizationID,
		Amount:          p.split.Gross,
		Currency:        p.currency,
		Status:          string(domain.PaymentPending),
	})
	log.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"amount":       p.split.Gross,
		"platform_fee": p.split.PlatformFee,
	}).Info("checkout started")

	return &CheckoutRedirect{
		SessionID:       session.ID,
		RedirectURL:     session.URL,
		AuthorizationID: session.AuthorizationID,
	}, nil
}

// CreateIntent places the same hold as StartCheckout for an embedded card
// form and returns the client secret that confirms it.
func (s *Service) CreateIntent(ctx context.Context, req CreateIntentRequest) (res *IntentResult, err error) {
	defer func() { s.count(kindIntent, err) }()
	log := s.log.WithFields(logrus.Fields{"booking_id": req.BookingID, "payer_id": req.PayerID})

	p, err := s.prepare(ctx, req.BookingID, req.PayerID, req.Amount)
	if err != nil {
		return nil, err
	}
	description := req.Description
	if description == "" {
		description = p.booking.Title
	}

	auth, err := s.gateway.CreateAuthorization(ctx, p.splitParams(req.PayerEmail, description))
	if err != nil {
		log.WithError(err).Error("authorization creation failed")
		return nil, fmt.Errorf("create authorization: %w", err)
	}

	if err := s.bookings.MarkCheckoutStarted(ctx, p.booking.ID, &auth.ID, nil); err != nil {
		return nil, fmt.Errorf("mark checkout started: %w", err)
	}
	if err := s.payments.UpsertPending(ctx, p.pendingPayment(auth.ID)); err != nil {
		return nil, fmt.Errorf("record pending payment: %w", err)
	}

	s.publish(ctx, events.SettlementEvent{
		Type:            events.CheckoutStarted,
		BookingID:       p.booking.ID,
		PayerID:         p.booking.PayerID,
		RecipientID:     p.booking.RecipientID,
		AuthorizationID: auth.ID,
		Amount:          p.split.Gross,
		Currency:        p.currency,
		Status:          string(domain.PaymentPending),
	})
	log.WithField("authorization_id", auth.ID).Info("authorization intent created")

	return &IntentResult{
		ClientSecret:    auth.ClientSecret,
		AuthorizationID: auth.ID,
		Amount:          p.split.Gross,
		PlatformFee:     p.split.PlatformFee,
		RecipientAmount: p.split.RecipientAmount,
		Currency:        p.currency,
	}, nil
}
