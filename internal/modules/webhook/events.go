package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"marketpay/internal/gateway"
)

// Gateway event types the reconciler acts on.
const (
	TypeAccountUpdated         = "account.updated"
	TypeAuthorizationSucceeded = "payment_intent.succeeded"
	TypeAuthorizationFailed    = "payment_intent.payment_failed"
	TypeAuthorizationCancelled = "payment_intent.canceled"
	TypeChargeRefunded         = "charge.refunded"
	TypeTransferCreated        = "transfer.created"
	TypeTransferReversed       = "transfer.reversed"
	TypePayoutPaid             = "payout.paid"
	TypePayoutFailed           = "payout.failed"
	TypeCheckoutCompleted      = "checkout.session.completed"
)

// Event is one decoded gateway notification. The set of variants is closed.
type Event interface {
	isEvent()
}

type AccountUpdated struct {
	AccountID        string
	RecipientID      *uuid.UUID
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type AuthorizationSucceeded struct {
	AuthorizationID string
	ChargeID        string
	Amount          int64
	Currency        string
	Metadata        map[string]string
}

type AuthorizationFailed struct {
	AuthorizationID string
	Reason          string
	Metadata        map[string]string
}

type AuthorizationCancelled struct {
	AuthorizationID string
	Reason          string
	Metadata        map[string]string
}

type ChargeRefunded struct {
	ChargeID        string
	AuthorizationID string
	AmountRefunded  int64
}

type TransferCreated struct {
	TransferID      string
	AuthorizationID string
	SourceChargeID  string
	Amount          int64
	Currency        string
	CreatedAt       time.Time
	Metadata        map[string]string
}

type TransferReversed struct {
	TransferID     string
	AmountReversed int64
}

type PayoutPaid struct {
	PayoutID  string
	AccountID string
	Amount    int64
	Currency  string
	PaidAt    time.Time
}

type PayoutFailed struct {
	PayoutID  string
	AccountID string
	Amount    int64
	Currency  string
	Reason    string
}

type CheckoutCompleted struct {
	SessionID       string
	AuthorizationID string
	ReferenceID     string
	Amount          int64
	Currency        string
	Metadata        map[string]string
}

type Unknown struct {
	Type string
}

func (AccountUpdated) isEvent()         {}
func (AuthorizationSucceeded) isEvent() {}
func (AuthorizationFailed) isEvent()    {}
func (AuthorizationCancelled) isEvent() {}
func (ChargeRefunded) isEvent()         {}
func (TransferCreated) isEvent()        {}
func (TransferReversed) isEvent()       {}
func (PayoutPaid) isEvent()             {}
func (PayoutFailed) isEvent()           {}
func (CheckoutCompleted) isEvent()      {}
func (Unknown) isEvent()                {}

var handledTypes = map[string]bool{
	TypeAccountUpdated:         true,
	TypeAuthorizationSucceeded: true,
	TypeAuthorizationFailed:    true,
	TypeAuthorizationCancelled: true,
	TypeChargeRefunded:         true,
	TypeTransferCreated:        true,
	TypeTransferReversed:       true,
	TypePayoutPaid:             true,
	TypePayoutFailed:           true,
	TypeCheckoutCompleted:      true,
}

// Decode maps a verified gateway event onto its variant. Types outside the
// handled set decode to Unknown whatever their payload.
func Decode(ev stripe.Event) (Event, error) {
	if !handledTypes[string(ev.Type)] {
		return Unknown{Type: string(ev.Type)}, nil
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s carries no object", ev.ID)
	}
	raw := ev.Data.Raw

	switch string(ev.Type) {
	case TypeAccountUpdated:
		var a stripe.Account
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out := AccountUpdated{
			AccountID:        a.ID,
			ChargesEnabled:   a.ChargesEnabled,
			PayoutsEnabled:   a.PayoutsEnabled,
			DetailsSubmitted: a.DetailsSubmitted,
		}
		if id, err := uuid.Parse(a.Metadata[gateway.MetaUserID]); err == nil {
			out.RecipientID = &id
		}
		return out, nil

	case TypeAuthorizationSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		amount := pi.AmountReceived
		if amount == 0 {
			amount = pi.Amount
		}
		out := AuthorizationSucceeded{
			AuthorizationID: pi.ID,
			Amount:          amount,
			Currency:        string(pi.Currency),
			Metadata:        pi.Metadata,
		}
		if pi.LatestCharge != nil {
			out.ChargeID = pi.LatestCharge.ID
		}
		return out, nil

	case TypeAuthorizationFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		reason := "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return AuthorizationFailed{AuthorizationID: pi.ID, Reason: reason, Metadata: pi.Metadata}, nil

	case TypeAuthorizationCancelled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		reason := "authorization canceled"
		if pi.CancellationReason != "" {
			reason = string(pi.CancellationReason)
		}
		return AuthorizationCancelled{AuthorizationID: pi.ID, Reason: reason, Metadata: pi.Metadata}, nil

	case TypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		out := ChargeRefunded{ChargeID: ch.ID, AmountRefunded: ch.AmountRefunded}
		if ch.PaymentIntent != nil {
			out.AuthorizationID = ch.PaymentIntent.ID
		}
		return out, nil

	case TypeTransferCreated:
		var t stripe.Transfer
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
		out := TransferCreated{
			TransferID:      t.ID,
			AuthorizationID: t.Metadata[gateway.MetaAuthorizationID],
			Amount:          t.Amount,
			Currency:        string(t.Currency),
			CreatedAt:       time.Unix(t.Created, 0).UTC(),
			Metadata:        t.Metadata,
		}
		if t.SourceTransaction != nil {
			out.SourceChargeID = t.SourceTransaction.ID
		}
		return out, nil

	case TypeTransferReversed:
		var t stripe.Transfer
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
		return TransferReversed{TransferID: t.ID, AmountReversed: t.AmountReversed}, nil

	case TypePayoutPaid:
		var p stripe.Payout
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode payout: %w", err)
		}
		paidAt := time.Unix(p.ArrivalDate, 0).UTC()
		if p.ArrivalDate == 0 {
			paidAt = time.Unix(ev.Created, 0).UTC()
		}
		return PayoutPaid{PayoutID: p.ID, AccountID: ev.Account, Amount: p.Amount, Currency: string(p.Currency), PaidAt: paidAt}, nil

	case TypePayoutFailed:
		var p stripe.Payout
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode payout: %w", err)
		}
		reason := p.FailureMessage
		if reason == "" {
			reason = string(p.FailureCode)
		}
		return PayoutFailed{PayoutID: p.ID, AccountID: ev.Account, Amount: p.Amount, Currency: string(p.Currency), Reason: reason}, nil

	case TypeCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out := CheckoutCompleted{
			SessionID:   s.ID,
			ReferenceID: s.ClientReferenceID,
			Amount:      s.AmountTotal,
			Currency:    string(s.Currency),
			Metadata:    s.Metadata,
		}
		if s.PaymentIntent != nil {
			out.AuthorizationID = s.PaymentIntent.ID
		}
		return out, nil

	default:
		return Unknown{Type: string(ev.Type)}, nil
	}
}
