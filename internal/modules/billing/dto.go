package billing

import (
	"time"

	"github.com/google/uuid"
)

type PageQuery struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

type BookingPaymentResponse struct {
	BookingID         uuid.UUID  `json:"bookingId"`
	PaymentStatus     string     `json:"paymentStatus" example:"captured"`
	AuthorizationID   *string    `json:"authorizationId"`
	GrossAmount       int64      `json:"grossAmount" example:"50000"`
	Currency          string     `json:"currency" example:"aud"`
	PayoutPending     bool       `json:"payoutPending"`
	PaymentCapturedAt *time.Time `json:"paymentCapturedAt,omitempty"`
	InvoiceID         *uuid.UUID `json:"invoiceId"`
	InvoiceNumber     *string    `json:"invoiceNumber" example:"INV-202603-0001"`
}

type InvoiceResponse struct {
	ID              uuid.UUID  `json:"id"`
	InvoiceNumber   string     `json:"invoiceNumber" example:"INV-202603-0001"`
	BookingID       uuid.UUID  `json:"bookingId"`
	PayerID         uuid.UUID  `json:"payerId"`
	RecipientID     uuid.UUID  `json:"recipientId"`
	Subtotal        int64      `json:"subtotal"`
	PlatformFee     int64      `json:"platformFee"`
	Total           int64      `json:"total"`
	RecipientPayout int64      `json:"recipientPayout"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status" example:"paid"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type PaymentResponse struct {
	ID              uuid.UUID  `json:"id"`
	BookingID       uuid.UUID  `json:"bookingId"`
	AuthorizationID string     `json:"authorizationId"`
	TransferID      *string    `json:"transferId,omitempty"`
	Amount          int64      `json:"amount"`
	PlatformFee     int64      `json:"platformFee"`
	RecipientAmount int64      `json:"recipientAmount"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	InvoiceNumber   *string    `json:"invoiceNumber,omitempty"`
	CapturedAt      *time.Time `json:"capturedAt,omitempty"`
	TransferredAt   *time.Time `json:"transferredAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type PaymentListResponse struct {
	Items  []PaymentResponse `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type PayerStats struct {
	Total      int64 `json:"total"`
	Paid       int64 `json:"paid"`
	Refunded   int64 `json:"refunded"`
	TotalSpent int64 `json:"totalSpent"`
}

type RecipientStats struct {
	Total       int64 `json:"total"`
	Paid        int64 `json:"paid"`
	Refunded    int64 `json:"refunded"`
	TotalEarned int64 `json:"totalEarned"`
}

type InvoiceStatsResponse struct {
	AsPayer     PayerStats     `json:"asPayer"`
	AsRecipient RecipientStats `json:"asRecipient"`
}

func toBookingPaymentResponse(r *BookingPaymentRow) BookingPaymentResponse {
	return BookingPaymentResponse{
		BookingID:         r.BookingID,
		PaymentStatus:     r.PaymentStatus,
		AuthorizationID:   r.AuthorizationID,
		GrossAmount:       r.GrossAmount,
		Currency:          r.Currency,
		PayoutPending:     r.PayoutPending,
		PaymentCapturedAt: r.PaymentCapturedAt,
		InvoiceID:         r.InvoiceID,
		InvoiceNumber:     r.InvoiceNumber,
	}
}

func toInvoiceResponse(r *InvoiceRow) InvoiceResponse {
	return InvoiceResponse{
		ID:              r.ID,
		InvoiceNumber:   r.InvoiceNumber,
		BookingID:       r.BookingID,
		PayerID:         r.PayerID,
		RecipientID:     r.RecipientID,
		Subtotal:        r.Subtotal,
		PlatformFee:     r.PlatformFee,
		Total:           r.Total,
		RecipientPayout: r.RecipientPayout,
		Currency:        r.Currency,
		Status:          r.Status,
		PaidAt:          r.PaidAt,
		CreatedAt:       r.CreatedAt,
	}
}

func toPaymentList(rows []PaymentRow, total int, p Page) PaymentListResponse {
	items := make([]PaymentResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, PaymentResponse{
			ID:              r.ID,
			BookingID:       r.BookingID,
			AuthorizationID: r.AuthorizationID,
			TransferID:      r.TransferID,
			Amount:          r.Amount,
			PlatformFee:     r.PlatformFee,
			RecipientAmount: r.RecipientAmount,
			Currency:        r.Currency,
			Status:          r.Status,
			InvoiceNumber:   r.InvoiceNumber,
			CapturedAt:      r.CapturedAt,
			TransferredAt:   r.TransferredAt,
			CreatedAt:       r.CreatedAt,
		})
	}
	return PaymentListResponse{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}
