package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpay/internal/domain"
)

const invoiceNumberAttempts = 3

// ErrCaptureRecorded means another writer already persisted the capture for
// this booking; the caller should load and return the stored result.
var ErrCaptureRecorded = errors.New("capture already recorded")

// CaptureRecord is everything a successful capture writes to the ledger.
type CaptureRecord struct {
	BookingID       uuid.UUID
	PayerID         uuid.UUID
	RecipientID     uuid.UUID
	AuthorizationID string
	ChargeID        string
	TransferID      string
	Gross           int64
	PlatformFee     int64
	RecipientAmount int64
	Currency        string
	PayoutPending   bool
	CapturedAt      time.Time
}

// SettlementRepository persists a capture's invoice, payment and booking
// changes atomically.
type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// RecordCapture allocates an invoice number, writes the paid invoice, upserts
// the payment and marks the booking captured in one transaction.
func (r *SettlementRepository) RecordCapture(ctx context.Context, rec CaptureRecord) (*domain.Invoice, *domain.Payment, error) {
	var (
		invoice domain.Invoice
		payment domain.Payment
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&domain.Invoice{}).Where("booking_id = ?", rec.BookingID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrCaptureRecorded
		}

		paidAt := rec.CapturedAt
		invoice = domain.Invoice{
			BookingID:       rec.BookingID,
			PayerID:         rec.PayerID,
			RecipientID:     rec.RecipientID,
			Subtotal:        rec.Gross,
			PlatformFee:     rec.PlatformFee,
			Total:           rec.Gross,
			RecipientPayout: rec.RecipientAmount,
			Currency:        rec.Currency,
			Status:          domain.InvoicePaid,
			PaidAt:          &paidAt,
		}
		if err := createInvoice(tx, &invoice, rec.CapturedAt); err != nil {
			return err
		}

		payment = domain.Payment{
			InvoiceID:       &invoice.ID,
			BookingID:       rec.BookingID,
			AuthorizationID: rec.AuthorizationID,
			PayerID:         rec.PayerID,
			RecipientID:     rec.RecipientID,
			Amount:          rec.Gross,
			PlatformFee:     rec.PlatformFee,
			RecipientAmount: rec.RecipientAmount,
			Currency:        rec.Currency,
			Status:          domain.PaymentSucceeded,
			CapturedAt:      &paidAt,
		}
		columns := []string{
			"invoice_id", "booking_id", "payer_id", "recipient_id", "amount", "platform_fee",
			"recipient_amount", "currency", "status", "captured_at", "updated_at",
		}
		if rec.ChargeID != "" {
			payment.ChargeID = &rec.ChargeID
			columns = append(columns, "charge_id")
		}
		if rec.TransferID != "" {
			payment.TransferID = &rec.TransferID
			payment.TransferredAt = &paidAt
			columns = append(columns, "transfer_id", "transferred_at")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "authorization_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Table: "payments", Name: "status"}, Value: domain.PaymentRefunded},
			}},
		}).Create(&payment).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Booking{}).
			Where("id = ? AND payment_status <> ?", rec.BookingID, domain.PaymentRefunded).
			Updates(map[string]interface{}{
				"payment_status":      domain.PaymentCaptured,
				"authorization_id":    rec.AuthorizationID,
				"invoice_id":          invoice.ID,
				"payout_pending":      rec.PayoutPending,
				"payment_captured_at": paidAt,
				"updated_at":          time.Now().UTC(),
			})
		return res.Error
	})
	if err != nil {
		if errors.Is(err, ErrCaptureRecorded) {
			return nil, nil, err
		}
		if IsUniqueViolation(err) {
			return nil, nil, fmt.Errorf("%w: %v", ErrCaptureRecorded, err)
		}
		return nil, nil, err
	}

	stored, err := r.loadPayment(ctx, rec.AuthorizationID)
	if err != nil {
		return nil, nil, err
	}
	return &invoice, stored, nil
}

// createInvoice retries number allocation when a number collides, inside a
// savepoint so the outer transaction survives the failed insert.
func createInvoice(tx *gorm.DB, invoice *domain.Invoice, now time.Time) error {
	var lastErr error
	for attempt := 0; attempt < invoiceNumberAttempts; attempt++ {
		lastErr = tx.Transaction(func(sp *gorm.DB) error {
			number, err := nextInvoiceNumber(sp, now)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
			return sp.Create(invoice).Error
		})
		if lastErr == nil {
			return nil
		}
		if !IsUniqueViolation(lastErr) {
			return lastErr
		}

		var sameBooking int64
		if err := tx.Model(&domain.Invoice{}).Where("booking_id = ?", invoice.BookingID).Count(&sameBooking).Error; err != nil {
			return err
		}
		if sameBooking > 0 {
			return ErrCaptureRecorded
		}
		invoice.ID = uuid.Nil
	}
	return fmt.Errorf("allocate invoice number: %w", lastErr)
}

// LoadCapture returns the stored payment and invoice for a completed capture,
// or ErrPaymentNotFound when the ledger holds none.
func (r *SettlementRepository) LoadCapture(ctx context.Context, authorizationID string) (*domain.Payment, *domain.Invoice, error) {
	p, err := r.loadPayment(ctx, authorizationID)
	if err != nil {
		return nil, nil, err
	}
	if p.InvoiceID == nil || (p.Status != domain.PaymentSucceeded && p.Status != domain.PaymentRefunded) {
		return nil, nil, domain.ErrPaymentNotFound
	}
	var inv domain.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", *p.InvoiceID).First(&inv).Error; err != nil {
		return nil, nil, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, &inv, nil
}

// LoadCaptureByBooking resolves a capture through the booking's invoice.
func (r *SettlementRepository) LoadCaptureByBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, *domain.Invoice, error) {
	var inv domain.Invoice
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&inv).Error; err != nil {
		return nil, nil, notFound(err, domain.ErrPaymentNotFound)
	}
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("invoice_id = ?", inv.ID).First(&p).Error; err != nil {
		return nil, nil, notFound(err, domain.ErrPaymentNotFound)
	}
	return &p, &inv, nil
}

func (r *SettlementRepository) loadPayment(ctx context.Context, authorizationID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("authorization_id = ?", authorizationID).First(&p).Error; err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound)
	}
	return &p, nil
}
