package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketpay/internal/domain"
)

const nextInvoiceSeqSQL = `
INSERT INTO invoice_sequences (period, last_value)
VALUES (?, 1)
ON CONFLICT (period) DO UPDATE SET last_value = invoice_sequences.last_value + 1
RETURNING last_value`

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// NextInvoiceNumber atomically allocates the next number for the month of now.
func (r *InvoiceRepository) NextInvoiceNumber(ctx context.Context, now time.Time) (string, error) {
	return nextInvoiceNumber(r.db.WithContext(ctx), now)
}

func nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	period := domain.InvoicePeriod(now)
	var seq int64
	if err := tx.Raw(nextInvoiceSeqSQL, period).Scan(&seq).Error; err != nil {
		return "", err
	}
	return domain.FormatInvoiceNumber(period, seq), nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, notFound(err, domain.ErrInvoiceNotFound)
	}
	return &inv, nil
}

func (r *InvoiceRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&inv).Error; err != nil {
		return nil, notFound(err, domain.ErrInvoiceNotFound)
	}
	return &inv, nil
}

// MarkRefunded applies the only transition allowed on a paid invoice.
func (r *InvoiceRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, domain.InvoicePaid).
		Updates(map[string]interface{}{
			"status":     domain.InvoiceRefunded,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}
