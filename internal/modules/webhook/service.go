package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/datatypes"

	"marketpay/internal/domain"
	"marketpay/internal/events"
	"marketpay/internal/gateway"
	"marketpay/internal/metrics"
)

// Outcomes recorded per event in settlement_webhook_events_total.
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

// Ack is what the gateway receives for every verified delivery.
type Ack struct {
	Received bool
	Type     string
}

type Repositories struct {
	Ledger   eventLedger
	Accounts accountRepo
	Bookings bookingRepo
	Payments paymentRepo
	Invoices invoiceRepo
	Payouts  payoutRepo
}

type Service struct {
	verifier  verifier
	ledger    eventLedger
	accounts  accountRepo
	bookings  bookingRepo
	payments  paymentRepo
	invoices  invoiceRepo
	payouts   payoutRepo
	publisher events.Publisher
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(v verifier, repos Repositories, publisher events.Publisher, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		verifier:  v,
		ledger:    repos.Ledger,
		accounts:  repos.Accounts,
		bookings:  repos.Bookings,
		payments:  repos.Payments,
		invoices:  repos.Invoices,
		payouts:   repos.Payouts,
		publisher: publisher,
		log:       log,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle verifies and applies one webhook delivery. Only a signature failure
// is returned as an error; processing failures are logged and kept in the
// event ledger for replay.
func (s *Service) Handle(ctx context.Context, payload []byte, signature string) (*Ack, error) {
	ev, err := s.verifier.Verify(payload, signature)
	if err != nil {
		s.log.WithError(err).Warn("webhook signature rejected")
		return nil, err
	}
	ack := &Ack{Received: true, Type: string(ev.Type)}
	log := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})

	stored, err := s.ledger.Record(ctx, &domain.WebhookEvent{
		EventID:   ev.ID,
		EventType: string(ev.Type),
		AccountID: ev.Account,
		Payload:   datatypes.JSON(payload),
	})
	if err != nil {
		log.WithError(err).Error("webhook event not recorded")
	} else if stored.Processed() {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), outcomeDuplicate).Inc()
		log.Debug("webhook event already processed")
		return ack, nil
	}

	s.apply(ctx, ev, log)
	return ack, nil
}

// Replay re-applies a stored event whose earlier processing failed.
func (s *Service) Replay(ctx context.Context, stored domain.WebhookEvent) error {
	var ev stripe.Event
	if err := json.Unmarshal(stored.Payload, &ev); err != nil {
		_ = s.ledger.MarkFailed(ctx, stored.EventID, "decode stored payload: "+err.Error())
		return fmt.Errorf("decode stored event %s: %w", stored.EventID, err)
	}
	// count the replay so ListFailed gives up after the attempt budget
	if _, err := s.ledger.Record(ctx, &domain.WebhookEvent{
		EventID:   stored.EventID,
		EventType: stored.EventType,
		AccountID: stored.AccountID,
		Payload:   stored.Payload,
	}); err != nil {
		return fmt.Errorf("record replay of %s: %w", stored.EventID, err)
	}
	log := s.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type, "replay": true})
	return s.apply(ctx, ev, log)
}

func (s *Service) apply(ctx context.Context, ev stripe.Event, log logrus.FieldLogger) error {
	outcome, err := s.process(ctx, ev, log)
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), outcomeFailed).Inc()
		log.WithError(err).Error("webhook processing failed")
		if markErr := s.ledger.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("webhook failure not recorded")
		}
		return err
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(string(ev.Type), outcome).Inc()
	if err := s.ledger.MarkProcessed(ctx, ev.ID); err != nil {
		log.WithError(err).Warn("webhook event not marked processed")
	}
	return nil
}

func (s *Service) process(ctx context.Context, ev stripe.Event, log logrus.FieldLogger) (string, error) {
	decoded, err := Decode(ev)
	if err != nil {
		return "", err
	}

	switch e := decoded.(type) {
	case AccountUpdated:
		return s.onAccountUpdated(ctx, e, log)
	case AuthorizationSucceeded:
		return s.onAuthorizationSucceeded(ctx, e, log)
	case AuthorizationFailed:
		return s.onAuthorizationEnded(ctx, e.AuthorizationID, e.Metadata, domain.PaymentFailed, e.Reason, log)
	case AuthorizationCancelled:
		return s.onAuthorizationEnded(ctx, e.AuthorizationID, e.Metadata, domain.PaymentCancelled, e.Reason, log)
	case ChargeRefunded:
		return s.onChargeRefunded(ctx, e, log)
	case TransferCreated:
		return s.onTransferCreated(ctx, e, log)
	case TransferReversed:
		s.metrics.TransferReversalsTotal.Inc()
		log.WithFields(logrus.Fields{"transfer_id": e.TransferID, "amount_reversed": e.AmountReversed}).
			Warn("transfer reversed by gateway")
		return outcomeProcessed, nil
	case PayoutPaid:
		return s.onPayout(ctx, e.AccountID, &domain.Payout{
			PayoutID: e.PayoutID, Amount: e.Amount, Currency: e.Currency, Status: domain.PayoutPaid, PaidAt: &e.PaidAt,
		}, log)
	case PayoutFailed:
		return s.onPayout(ctx, e.AccountID, &domain.Payout{
			PayoutID: e.PayoutID, Amount: e.Amount, Currency: e.Currency, Status: domain.PayoutFailed, FailureReason: e.Reason,
		}, log)
	case CheckoutCompleted:
		return s.onCheckoutCompleted(ctx, e, log)
	case Unknown:
		log.Info("unhandled webhook event type")
		return outcomeIgnored, nil
	default:
		return "", fmt.Errorf("no handler for %T", decoded)
	}
}

func (s *Service) onAccountUpdated(ctx context.Context, e AccountUpdated, log logrus.FieldLogger) (string, error) {
	acc, err := s.accounts.SyncCapabilities(ctx, e.AccountID, e.RecipientID, e.ChargesEnabled, e.PayoutsEnabled, e.DetailsSubmitted)
	if errors.Is(err, domain.ErrAccountNotFound) {
		log.WithField("account_id", e.AccountID).Info("update for unknown connected account ignored")
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("sync account %s: %w", e.AccountID, err)
	}
	log.WithFields(logrus.Fields{
		"account_id":           acc.ExternalAccountID,
		"onboarding_completed": acc.OnboardingCompleted,
	}).Info("connected account synced")
	s.publish(ctx, events.SettlementEvent{
		Type:        events.AccountUpdated,
		RecipientID: acc.RecipientID,
		Status:      strconv.FormatBool(acc.OnboardingCompleted),
	})
	return outcomeProcessed, nil
}

func (s *Service) onAuthorizationSucceeded(ctx context.Context, e AuthorizationSucceeded, log logrus.FieldLogger) (string, error) {
	log = log.WithField("authorization_id", e.AuthorizationID)

	existing, err := s.payments.GetByAuthorizationID(ctx, e.AuthorizationID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return "", err
	}
	// A missing row, or a placeholder left by an early transfer, is filled
	// from the checkout metadata.
	if existing == nil || existing.Amount == 0 {
		p, ok := paymentFromMetadata(e.AuthorizationID, e.Amount, e.Currency, e.Metadata)
		if !ok && existing == nil {
			log.Info("authorization without booking metadata ignored")
			return outcomeIgnored, nil
		}
		if ok {
			if err := s.payments.UpsertPending(ctx, p); err != nil {
				return "", fmt.Errorf("create payment from metadata: %w", err)
			}
		}
	}

	if e.ChargeID != "" {
		if err := s.payments.SetChargeID(ctx, e.AuthorizationID, e.ChargeID); err != nil {
			return "", fmt.Errorf("attach charge: %w", err)
		}
	}
	if _, err := s.payments.SetStatus(ctx, e.AuthorizationID, domain.PaymentSucceeded, ""); err != nil {
		return "", fmt.Errorf("mark payment succeeded: %w", err)
	}

	b, err := s.resolveBooking(ctx, e.AuthorizationID, e.Metadata)
	if errors.Is(err, domain.ErrBookingNotFound) {
		log.Warn("payment succeeded for unknown booking")
		return outcomeProcessed, nil
	}
	if err != nil {
		return "", err
	}
	changed, err := s.bookings.UpdatePaymentStatus(ctx, b.ID, domain.PaymentSucceeded)
	if err != nil {
		return "", fmt.Errorf("mark booking succeeded: %w", err)
	}
	if changed {
		s.publish(ctx, events.SettlementEvent{
			Type:            events.PaymentSucceeded,
			BookingID:       b.ID,
			PayerID:         b.PayerID,
			RecipientID:     b.RecipientID,
			AuthorizationID: e.AuthorizationID,
			Amount:          e.Amount,
			Currency:        e.Currency,
			Status:          string(domain.PaymentSucceeded),
		})
	}
	log.WithField("booking_id", b.ID).Info("authorization succeeded")
	return outcomeProcessed, nil
}

// onAuthorizationEnded mirrors a failed or cancelled authorization.
func (s *Service) onAuthorizationEnded(ctx context.Context, authorizationID string, metadata map[string]string, status domain.PaymentStatus, reason string, log logrus.FieldLogger) (string, error) {
	log = log.WithField("authorization_id", authorizationID)

	if _, err := s.payments.SetStatus(ctx, authorizationID, status, reason); err != nil {
		return "", fmt.Errorf("mark payment %s: %w", status, err)
	}
	b, err := s.resolveBooking(ctx, authorizationID, metadata)
	if errors.Is(err, domain.ErrBookingNotFound) {
		log.Info("authorization for unknown booking ignored")
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	changed, err := s.bookings.UpdatePaymentStatus(ctx, b.ID, status)
	if err != nil {
		return "", fmt.Errorf("mark booking %s: %w", status, err)
	}
	if changed {
		typ := events.PaymentFailed
		if status == domain.PaymentCancelled {
			typ = events.PaymentCancelled
		}
		s.publish(ctx, events.SettlementEvent{
			Type:            typ,
			BookingID:       b.ID,
			PayerID:         b.PayerID,
			RecipientID:     b.RecipientID,
			AuthorizationID: authorizationID,
			Status:          string(status),
			Reason:          reason,
		})
	}
	log.WithFields(logrus.Fields{"booking_id": b.ID, "status": status, "reason": reason}).Info("authorization ended")
	return outcomeProcessed, nil
}

func (s *Service) onChargeRefunded(ctx context.Context, e ChargeRefunded, log logrus.FieldLogger) (string, error) {
	log = log.WithField("charge_id", e.ChargeID)

	p, err := s.payments.GetByChargeID(ctx, e.ChargeID)
	if errors.Is(err, domain.ErrPaymentNotFound) && e.AuthorizationID != "" {
		p, err = s.payments.GetByAuthorizationID(ctx, e.AuthorizationID)
	}
	if errors.Is(err, domain.ErrPaymentNotFound) {
		log.Info("refund for unknown charge ignored")
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	if _, err := s.payments.SetStatus(ctx, p.AuthorizationID, domain.PaymentRefunded, ""); err != nil {
		return "", fmt.Errorf("mark payment refunded: %w", err)
	}

	invoiceID := p.InvoiceID
	if invoiceID == nil {
		inv, err := s.invoices.GetByBookingID(ctx, p.BookingID)
		switch {
		case err == nil:
			invoiceID = &inv.ID
		case !errors.Is(err, domain.ErrInvoiceNotFound):
			return "", err
		}
	}
	if invoiceID != nil {
		if _, err := s.invoices.MarkRefunded(ctx, *invoiceID); err != nil {
			return "", fmt.Errorf("mark invoice refunded: %w", err)
		}
	}

	changed, err := s.bookings.UpdatePaymentStatus(ctx, p.BookingID, domain.PaymentRefunded)
	if err != nil {
		return "", fmt.Errorf("mark booking refunded: %w", err)
	}
	if changed {
		s.publish(ctx, events.SettlementEvent{
			Type:            events.PaymentRefunded,
			BookingID:       p.BookingID,
			PayerID:         p.PayerID,
			RecipientID:     p.RecipientID,
			AuthorizationID: p.AuthorizationID,
			Amount:          e.AmountRefunded,
			Currency:        p.Currency,
			Status:          string(domain.PaymentRefunded),
		})
	}
	log.WithField("authorization_id", p.AuthorizationID).Info("payment refunded")
	return outcomeProcessed, nil
}

// onTransferCreated attaches the transfer to its payment, matched by the
// authorization id in metadata and then by source charge. A transfer that
// arrives before its authorization leaves a placeholder row.
func (s *Service) onTransferCreated(ctx context.Context, e TransferCreated, log logrus.FieldLogger) (string, error) {
	log = log.WithFields(logrus.Fields{"transfer_id": e.TransferID, "authorization_id": e.AuthorizationID})
	at := e.CreatedAt
	if at.IsZero() || at.Unix() == 0 {
		at = s.now()
	}

	attached := false
	if e.AuthorizationID != "" {
		ok, err := s.payments.AttachTransfer(ctx, e.AuthorizationID, e.TransferID, at)
		if err != nil {
			return "", fmt.Errorf("attach transfer: %w", err)
		}
		attached = ok
	}
	if !attached && e.SourceChargeID != "" {
		ok, err := s.payments.AttachTransferByCharge(ctx, e.SourceChargeID, e.TransferID, at)
		if err != nil {
			return "", fmt.Errorf("attach transfer by charge: %w", err)
		}
		attached = ok
	}
	if !attached {
		bookingID, err := uuid.Parse(e.Metadata[gateway.MetaBookingID])
		if e.AuthorizationID == "" || err != nil {
			log.Info("transfer for unknown payment ignored")
			return outcomeIgnored, nil
		}
		transferID := e.TransferID
		if err := s.payments.UpsertTransfer(ctx, &domain.Payment{
			BookingID:       bookingID,
			AuthorizationID: e.AuthorizationID,
			TransferID:      &transferID,
			TransferredAt:   &at,
			Currency:        e.Currency,
		}); err != nil {
			return "", fmt.Errorf("record early transfer: %w", err)
		}
		log.Info("transfer recorded ahead of authorization")
	}

	ev := events.SettlementEvent{
		Type:            events.TransferAttached,
		AuthorizationID: e.AuthorizationID,
		Amount:          e.Amount,
		Currency:        e.Currency,
	}
	if id, err := uuid.Parse(e.Metadata[gateway.MetaBookingID]); err == nil {
		ev.BookingID = id
	}
	if id, err := uuid.Parse(e.Metadata[gateway.MetaRecipientID]); err == nil {
		ev.RecipientID = id
	}
	s.publish(ctx, ev)
	return outcomeProcessed, nil
}

func (s *Service) onPayout(ctx context.Context, accountID string, p *domain.Payout, log logrus.FieldLogger) (string, error) {
	log = log.WithFields(logrus.Fields{"payout_id": p.PayoutID, "account_id": accountID})

	acc, err := s.accounts.GetByExternalID(ctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		log.Info("payout for unknown connected account ignored")
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	p.ExternalAccountID = acc.ExternalAccountID
	p.RecipientID = &acc.RecipientID
	p.Currency = strings.ToLower(p.Currency)
	if err := s.payouts.Upsert(ctx, p); err != nil {
		return "", fmt.Errorf("upsert payout: %w", err)
	}

	typ := events.PayoutPaid
	if p.Status == domain.PayoutFailed {
		typ = events.PayoutFailed
		log.WithField("reason", p.FailureReason).Warn("payout failed")
	} else {
		log.Info("payout paid")
	}
	s.publish(ctx, events.SettlementEvent{
		Type:        typ,
		RecipientID: acc.RecipientID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      string(p.Status),
		Reason:      p.FailureReason,
	})
	return outcomeProcessed, nil
}

// onCheckoutCompleted links the authorization revealed by a finished hosted
// checkout to its booking.
func (s *Service) onCheckoutCompleted(ctx context.Context, e CheckoutCompleted, log logrus.FieldLogger) (string, error) {
	log = log.WithFields(logrus.Fields{"session_id": e.SessionID, "authorization_id": e.AuthorizationID})
	if e.AuthorizationID == "" {
		log.Info("checkout completed without authorization")
		return outcomeIgnored, nil
	}

	ref := e.Metadata[gateway.MetaBookingID]
	if ref == "" {
		ref = e.ReferenceID
	}
	bookingID, err := uuid.Parse(ref)
	if err != nil {
		log.Info("checkout without booking reference ignored")
		return outcomeIgnored, nil
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		log.WithField("booking_id", bookingID).Info("checkout for unknown booking ignored")
		return outcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}

	attached, err := s.bookings.AttachAuthorization(ctx, b.ID, e.AuthorizationID)
	if err != nil {
		return "", fmt.Errorf("attach authorization: %w", err)
	}
	if !attached {
		log.WithField("booking_id", b.ID).Warn("booking already bound to another authorization")
		return outcomeIgnored, nil
	}

	amount := e.Amount
	if amount == 0 {
		amount = b.GrossAmount
	}
	currency := e.Currency
	if currency == "" {
		currency = b.Currency
	}
	platformFee := parseFee(e.Metadata)
	if err := s.payments.UpsertPending(ctx, &domain.Payment{
		BookingID:       b.ID,
		AuthorizationID: e.AuthorizationID,
		PayerID:         b.PayerID,
		RecipientID:     b.RecipientID,
		Amount:          amount,
		PlatformFee:     platformFee,
		RecipientAmount: amount - platformFee,
		Currency:        strings.ToLower(currency),
	}); err != nil {
		return "", fmt.Errorf("upsert pending payment: %w", err)
	}
	log.WithField("booking_id", b.ID).Info("checkout completed")
	return outcomeProcessed, nil
}

func (s *Service) resolveBooking(ctx context.Context, authorizationID string, metadata map[string]string) (*domain.Booking, error) {
	if id, err := uuid.Parse(metadata[gateway.MetaBookingID]); err == nil {
		b, err := s.bookings.GetByID(ctx, id)
		if !errors.Is(err, domain.ErrBookingNotFound) {
			return b, err
		}
	}
	return s.bookings.GetByAuthorizationID(ctx, authorizationID)
}

func (s *Service) publish(ctx context.Context, ev events.SettlementEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event_type", ev.Type).Warn("settlement event not published")
	}
}

// paymentFromMetadata rebuilds a pending payment for an authorization that
// reached the webhook before any checkout write.
func paymentFromMetadata(authorizationID string, amount int64, currency string, metadata map[string]string) (*domain.Payment, bool) {
	bookingID, err := uuid.Parse(metadata[gateway.MetaBookingID])
	if err != nil {
		return nil, false
	}
	p := &domain.Payment{
		BookingID:       bookingID,
		AuthorizationID: authorizationID,
		Amount:          amount,
		Currency:        strings.ToLower(currency),
	}
	if id, err := uuid.Parse(metadata[gateway.MetaPayerID]); err == nil {
		p.PayerID = id
	}
	if id, err := uuid.Parse(metadata[gateway.MetaRecipientID]); err == nil {
		p.RecipientID = id
	}
	p.PlatformFee = parseFee(metadata)
	p.RecipientAmount = amount - p.PlatformFee
	return p, true
}

func parseFee(metadata map[string]string) int64 {
	v, err := strconv.ParseInt(metadata[gateway.MetaPlatformFee], 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
