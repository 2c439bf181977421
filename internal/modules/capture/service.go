package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketpay/internal/domain"
	"marketpay/internal/events"
	"marketpay/internal/gateway"
	"marketpay/internal/metrics"
	"marketpay/internal/modules/fee"
	"marketpay/internal/repository"
)

// Resync outcomes.
const (
	StateCapturable      = "capturable"
	StateCaptured        = "captured"
	StateCancelled       = "cancelled"
	StateProcessing      = "processing"
	StateAwaitingPayment = "awaiting_payment"
)

// SecondaryFailure is a non-fatal step that failed after funds were captured.
type SecondaryFailure struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

type CaptureResult struct {
	AuthorizationID  string
	ChargeID         string
	TransferID       string
	InvoiceID        uuid.UUID
	InvoiceNumber    string
	GrossAmount      int64
	PlatformFee      int64
	RecipientAmount  int64
	Currency         string
	PayoutPending    bool
	SecondaryFailure *SecondaryFailure
	Replayed         bool
}

type ResyncResult struct {
	AuthorizationID string
	GatewayStatus   string
	State           string
	Capture         *CaptureResult
}

type Service struct {
	bookings   bookingRepo
	accounts   accountReader
	payments   paymentWriter
	settlement settlementRepo
	gateway    captureGateway
	fees       *fee.Policy
	publisher  events.Publisher
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(
	bookings bookingRepo,
	accounts accountReader,
	payments paymentWriter,
	settlement settlementRepo,
	gw captureGateway,
	fees *fee.Policy,
	publisher events.Publisher,
	log logrus.FieldLogger,
	m *metrics.Metrics,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		bookings:   bookings,
		accounts:   accounts,
		payments:   payments,
		settlement: settlement,
		gateway:    gw,
		fees:       fees,
		publisher:  publisher,
		log:        log,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Capture converts an authorization hold into captured funds, pays the
// recipient and records the invoice. Repeating a completed capture returns
// the stored result without touching the gateway.
func (s *Service) Capture(ctx context.Context, authorizationID string, bookingID uuid.UUID) (*CaptureResult, error) {
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" || bookingID == uuid.Nil {
		return nil, fmt.Errorf("%w: authorization id and booking id are required", domain.ErrValidation)
	}
	log := s.log.WithFields(logrus.Fields{"authorization_id": authorizationID, "booking_id": bookingID})

	replayed, err := s.replay(ctx, authorizationID)
	if err != nil || replayed != nil {
		return replayed, err
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AuthorizationID != nil && *b.AuthorizationID != "" && *b.AuthorizationID != authorizationID {
		return nil, fmt.Errorf("%w: authorization does not belong to booking", domain.ErrValidation)
	}
	if b.Status == domain.BookingCancelled {
		s.metrics.CapturesTotal.WithLabelValues("not_capturable").Inc()
		log.Info("booking cancelled, capture refused")
		return nil, domain.ErrBookingCancelled
	}
	if b.InvoiceID != nil || b.PaymentStatus == domain.PaymentRefunded {
		s.metrics.CapturesTotal.WithLabelValues("not_capturable").Inc()
		log.WithField("payment_status", b.PaymentStatus).Info("booking already settled, capture refused")
		return nil, fmt.Errorf("%w: booking settled by an earlier capture", domain.ErrAlreadyPaid)
	}

	auth, err := s.gateway.GetAuthorization(ctx, authorizationID)
	if err != nil {
		s.metrics.CapturesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("retrieve authorization: %w", err)
	}
	if ref := auth.Metadata[gateway.MetaBookingID]; ref != "" && ref != bookingID.String() {
		return nil, fmt.Errorf("%w: authorization does not belong to booking", domain.ErrValidation)
	}
	if auth.Status != gateway.StatusRequiresCapture {
		s.metrics.CapturesTotal.WithLabelValues("not_capturable").Inc()
		log.WithField("status", auth.Status).Info("authorization not capturable")
		return nil, &domain.NotCapturableError{Status: auth.Status}
	}

	captured, err := s.gateway.CaptureAuthorization(ctx, authorizationID, "capture-"+authorizationID)
	if err != nil {
		s.metrics.CapturesTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("capture failed at gateway")
		return nil, fmt.Errorf("capture authorization: %w", err)
	}
	if captured.Metadata == nil {
		captured.Metadata = auth.Metadata
	}

	return s.settle(ctx, b, captured, auth.Amount, log)
}

// replay returns the stored result of a completed capture, or nil when the
// ledger holds none.
func (s *Service) replay(ctx context.Context, authorizationID string) (*CaptureResult, error) {
	p, inv, err := s.settlement.LoadCapture(ctx, authorizationID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load capture: %w", err)
	}
	s.metrics.CapturesTotal.WithLabelValues("replayed").Inc()
	res := resultFrom(p, inv)
	res.Replayed = true
	return res, nil
}

// settle records a capture that already happened at the gateway. requested
// is the amount originally authorized.
func (s *Service) settle(ctx context.Context, b *domain.Booking, auth *gateway.Authorization, requested int64, log logrus.FieldLogger) (*CaptureResult, error) {
	amount := auth.AmountReceived
	if amount == 0 {
		amount = auth.Amount
	}
	split, err := s.fees.Split(amount)
	if err != nil {
		return nil, err
	}
	s.checkQuotedFee(auth, requested, split, log)

	currency := strings.ToLower(auth.Currency)
	if currency == "" {
		currency = b.Currency
	}

	transferID, secondary := s.ensureTransfer(ctx, b, auth, split, currency, log)

	inv, p, err := s.settlement.RecordCapture(ctx, repository.CaptureRecord{
		BookingID:       b.ID,
		PayerID:         b.PayerID,
		RecipientID:     b.RecipientID,
		AuthorizationID: auth.ID,
		ChargeID:        auth.ChargeID,
		TransferID:      transferID,
		Gross:           split.Gross,
		PlatformFee:     split.PlatformFee,
		RecipientAmount: split.RecipientAmount,
		Currency:        currency,
		PayoutPending:   secondary != nil,
		CapturedAt:      s.now(),
	})
	if errors.Is(err, repository.ErrCaptureRecorded) {
		log.Info("capture recorded concurrently, returning stored result")
		return s.loadExisting(ctx, auth.ID, b.ID, log)
	}
	if err != nil {
		s.metrics.CapturesTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("funds captured but ledger write failed")
		return nil, fmt.Errorf("record capture: %w", err)
	}

	s.metrics.ObserveCapture(currency, split.Gross, split.PlatformFee)
	res := resultFrom(p, inv)
	res.PayoutPending = secondary != nil
	res.SecondaryFailure = secondary

	s.publish(ctx, events.SettlementEvent{
		Type:            events.PaymentCaptured,
		BookingID:       b.ID,
		PayerID:         b.PayerID,
		RecipientID:     b.RecipientID,
		AuthorizationID: auth.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Amount:          split.Gross,
		Currency:        currency,
		Status:          string(domain.PaymentCaptured),
	})
	if secondary != nil {
		s.publish(ctx, events.SettlementEvent{
			Type:            events.PayoutPending,
			BookingID:       b.ID,
			RecipientID:     b.RecipientID,
			AuthorizationID: auth.ID,
			Amount:          split.RecipientAmount,
			Currency:        currency,
			Reason:          secondary.Reason,
		})
	}
	log.WithFields(logrus.Fields{
		"invoice_number": inv.InvoiceNumber,
		"gross":          split.Gross,
		"platform_fee":   split.PlatformFee,
		"payout_pending": secondary != nil,
	}).Info("payment captured")
	return res, nil
}

// loadExisting returns the capture another writer recorded for this
// authorization. A booking settled under a different authorization is an
// error, never a replay.
func (s *Service) loadExisting(ctx context.Context, authorizationID string, bookingID uuid.UUID, log logrus.FieldLogger) (*CaptureResult, error) {
	p, inv, err := s.settlement.LoadCapture(ctx, authorizationID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		p, inv, err = s.settlement.LoadCaptureByBooking(ctx, bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("load recorded capture: %w", err)
	}
	if p.AuthorizationID != authorizationID {
		s.metrics.CapturesTotal.WithLabelValues("failed").Inc()
		log.WithField("recorded_authorization_id", p.AuthorizationID).
			Error("funds captured but booking already settled by another authorization")
		return nil, fmt.Errorf("%w: booking settled by authorization %s", domain.ErrAlreadyPaid, p.AuthorizationID)
	}
	s.metrics.CapturesTotal.WithLabelValues("replayed").Inc()
	res := resultFrom(p, inv)
	res.Replayed = true
	return res, nil
}

// checkQuotedFee compares the fee quoted at checkout with the capture-time
// split. The capture-time split always wins.
func (s *Service) checkQuotedFee(auth *gateway.Authorization, requested int64, split fee.Breakdown, log logrus.FieldLogger) {
	raw := auth.Metadata[gateway.MetaPlatformFee]
	if raw == "" {
		return
	}
	quoted, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.WithField("platform_fee", raw).Warn("unparseable quoted platform fee")
		return
	}
	expected := fee.ScaleFee(quoted, requested, split.Gross)
	if expected != split.PlatformFee {
		s.metrics.FeeDiscrepancyTotal.Inc()
		log.WithFields(logrus.Fields{
			"quoted_fee":   quoted,
			"expected_fee": expected,
			"applied_fee":  split.PlatformFee,
		}).Warn("platform fee differs from checkout quote")
	}
}

// ensureTransfer returns the transfer that pays the recipient, creating one
// when the gateway did not route funds with the charge. A failure is reported
// as a SecondaryFailure, never as an error.
func (s *Service) ensureTransfer(ctx context.Context, b *domain.Booking, auth *gateway.Authorization, split fee.Breakdown, currency string, log logrus.FieldLogger) (string, *SecondaryFailure) {
	if auth.TransferID != "" {
		return auth.TransferID, nil
	}
	fail := func(reason string) (string, *SecondaryFailure) {
		s.metrics.TransferFailuresTotal.Inc()
		log.WithField("reason", reason).Warn("recipient transfer failed, payout pending")
		return "", &SecondaryFailure{Operation: "transfer", Reason: reason}
	}

	acc, err := s.accounts.GetByRecipientID(ctx, b.RecipientID)
	if err != nil {
		return fail("recipient connected account unavailable: " + err.Error())
	}
	if acc.ExternalAccountID == "" {
		return fail("recipient has no connected account")
	}

	t, err := s.gateway.CreateTransfer(ctx, gateway.TransferParams{
		Amount:             split.RecipientAmount,
		Currency:           currency,
		DestinationAccount: acc.ExternalAccountID,
		SourceChargeID:     auth.ChargeID,
		TransferGroup:      "booking_" + b.ID.String(),
		Metadata: map[string]string{
			gateway.MetaBookingID:       b.ID.String(),
			gateway.MetaAuthorizationID: auth.ID,
		},
		IdempotencyKey: "transfer-" + auth.ID,
	})
	if err != nil {
		return fail(err.Error())
	}
	return t.ID, nil
}

func (s *Service) publish(ctx context.Context, ev events.SettlementEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event_type", ev.Type).Warn("settlement event not published")
	}
}

// Resync reconciles the ledger with the gateway's authoritative status for
// authorizationID. It never issues a capture.
func (s *Service) Resync(ctx context.Context, authorizationID string) (*ResyncResult, error) {
	authorizationID = strings.TrimSpace(authorizationID)
	if authorizationID == "" {
		return nil, fmt.Errorf("%w: authorization id is required", domain.ErrValidation)
	}
	log := s.log.WithField("authorization_id", authorizationID)

	replayed, err := s.replay(ctx, authorizationID)
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return &ResyncResult{AuthorizationID: authorizationID, GatewayStatus: gateway.StatusSucceeded, State: StateCaptured, Capture: replayed}, nil
	}

	auth, err := s.gateway.GetAuthorization(ctx, authorizationID)
	if err != nil {
		return nil, fmt.Errorf("retrieve authorization: %w", err)
	}
	out := &ResyncResult{AuthorizationID: authorizationID, GatewayStatus: auth.Status}

	switch auth.Status {
	case gateway.StatusRequiresCapture:
		out.State = StateCapturable
	case gateway.StatusProcessing:
		out.State = StateProcessing
	case gateway.StatusSucceeded:
		b, err := s.resolveBooking(ctx, auth)
		if err != nil {
			return nil, err
		}
		res, err := s.settle(ctx, b, auth, auth.Amount, log.WithField("booking_id", b.ID))
		if err != nil {
			return nil, err
		}
		log.Info("ledger repaired from gateway capture")
		out.State = StateCaptured
		out.Capture = res
	case gateway.StatusCanceled:
		if _, err := s.payments.SetStatus(ctx, authorizationID, domain.PaymentCancelled, "authorization canceled"); err != nil {
			return nil, fmt.Errorf("mirror cancellation: %w", err)
		}
		b, err := s.resolveBooking(ctx, auth)
		if err != nil {
			log.WithError(err).Warn("cancelled authorization has no booking")
			out.State = StateCancelled
			return out, nil
		}
		changed, err := s.bookings.UpdatePaymentStatus(ctx, b.ID, domain.PaymentCancelled)
		if err != nil {
			return nil, fmt.Errorf("mirror cancellation: %w", err)
		}
		if changed {
			s.publish(ctx, events.SettlementEvent{
				Type:            events.PaymentCancelled,
				BookingID:       b.ID,
				PayerID:         b.PayerID,
				RecipientID:     b.RecipientID,
				AuthorizationID: authorizationID,
				Status:          string(domain.PaymentCancelled),
			})
		}
		out.State = StateCancelled
	default:
		out.State = StateAwaitingPayment
	}
	return out, nil
}

func (s *Service) resolveBooking(ctx context.Context, auth *gateway.Authorization) (*domain.Booking, error) {
	if ref := auth.Metadata[gateway.MetaBookingID]; ref != "" {
		if id, err := uuid.Parse(ref); err == nil {
			return s.bookings.GetByID(ctx, id)
		}
	}
	return s.bookings.GetByAuthorizationID(ctx, auth.ID)
}

func resultFrom(p *domain.Payment, inv *domain.Invoice) *CaptureResult {
	res := &CaptureResult{
		AuthorizationID: p.AuthorizationID,
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		GrossAmount:     inv.Total,
		PlatformFee:     inv.PlatformFee,
		RecipientAmount: inv.RecipientPayout,
		Currency:        inv.Currency,
		PayoutPending:   p.TransferID == nil,
	}
	if p.ChargeID != nil {
		res.ChargeID = *p.ChargeID
	}
	if p.TransferID != nil {
		res.TransferID = *p.TransferID
	}
	return res
}
