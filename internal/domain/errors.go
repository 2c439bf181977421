package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAmountMismatch      = errors.New("amount does not match booking")
	ErrAlreadyPaid         = errors.New("booking has already been paid")
	ErrRecipientNotPayable = errors.New("recipient has not completed payment setup")
	ErrNotCapturable       = errors.New("payment cannot be captured")
	ErrBookingCancelled    = errors.New("booking is cancelled")

	ErrBookingNotFound = errors.New("booking not found")
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrAccountNotFound = errors.New("connected account not found")
	ErrForbidden       = errors.New("forbidden")

	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")

	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// NotCapturableError carries the gateway status that blocked a capture.
type NotCapturableError struct {
	Status string
}

func (e *NotCapturableError) Error() string {
	return fmt.Sprintf("payment cannot be captured. Status: %s", e.Status)
}

func (e *NotCapturableError) Unwrap() error { return ErrNotCapturable }
