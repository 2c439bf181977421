package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreservedStatuses(t *testing.T) {
	assert.Nil(t, PreservedStatuses(PaymentRefunded))
	assert.ElementsMatch(t, []PaymentStatus{PaymentSucceeded, PaymentCaptured, PaymentRefunded},
		PreservedStatuses(PaymentFailed))
	assert.ElementsMatch(t, PreservedStatuses(PaymentFailed), PreservedStatuses(PaymentCancelled))
	assert.ElementsMatch(t, []PaymentStatus{PaymentCaptured, PaymentRefunded}, PreservedStatuses(PaymentSucceeded))
	assert.Contains(t, PreservedStatuses(PaymentPending), PaymentFailed)
}

func TestConnectedAccount_Payable(t *testing.T) {
	var missing *ConnectedAccount
	assert.False(t, missing.Payable())

	a := &ConnectedAccount{ExternalAccountID: "acct_1"}
	a.SetCapabilities(true, true, false)
	assert.False(t, a.OnboardingCompleted)
	assert.False(t, a.Payable())

	a.SetCapabilities(true, true, true)
	assert.True(t, a.Payable())

	a.ExternalAccountID = ""
	assert.False(t, a.Payable())
}

func TestInvoiceNumber(t *testing.T) {
	at := time.Date(2026, 3, 31, 23, 30, 0, 0, time.FixedZone("AEST", -10*3600))
	assert.Equal(t, "202604", InvoicePeriod(at))
	assert.Equal(t, "INV-202603-0001", FormatInvoiceNumber("202603", 1))
	assert.Equal(t, "INV-202603-12345", FormatInvoiceNumber("202603", 12345))
}

func TestNotCapturableError(t *testing.T) {
	err := fmt.Errorf("capture: %w", &NotCapturableError{Status: "succeeded"})
	assert.True(t, errors.Is(err, ErrNotCapturable))

	var nc *NotCapturableError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, "succeeded", nc.Status)
	assert.Contains(t, err.Error(), "Status: succeeded")
}

func TestBooking_Parties(t *testing.T) {
	b := &Booking{PayerID: uuid.New(), RecipientID: uuid.New(), PaymentStatus: PaymentCaptured}
	assert.True(t, b.IsPaid())
	assert.True(t, b.IsParty(b.PayerID))
	assert.True(t, b.IsParty(b.RecipientID))
	assert.False(t, b.IsParty(uuid.New()))
}

func TestBooking_RefundedIsSettled(t *testing.T) {
	b := &Booking{PaymentStatus: PaymentRefunded}
	assert.False(t, b.IsPaid())
	assert.True(t, b.IsSettled())

	invoiceID := uuid.New()
	assert.True(t, (&Booking{PaymentStatus: PaymentPending, InvoiceID: &invoiceID}).IsSettled())
	assert.False(t, (&Booking{PaymentStatus: PaymentFailed}).IsSettled())
}
