package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"marketpay/internal/domain"
)

// BookingPaymentRow is the settlement view of one booking.
type BookingPaymentRow struct {
	BookingID         uuid.UUID  `db:"booking_id"`
	PayerID           uuid.UUID  `db:"payer_id"`
	RecipientID       uuid.UUID  `db:"recipient_id"`
	GrossAmount       int64      `db:"gross_amount"`
	Currency          string     `db:"currency"`
	PaymentStatus     string     `db:"payment_status"`
	AuthorizationID   *string    `db:"authorization_id"`
	PayoutPending     bool       `db:"payout_pending"`
	PaymentCapturedAt *time.Time `db:"payment_captured_at"`
	InvoiceID         *uuid.UUID `db:"invoice_id"`
	InvoiceNumber     *string    `db:"invoice_number"`
}

type InvoiceRow struct {
	ID              uuid.UUID  `db:"id"`
	InvoiceNumber   string     `db:"invoice_number"`
	BookingID       uuid.UUID  `db:"booking_id"`
	PayerID         uuid.UUID  `db:"payer_id"`
	RecipientID     uuid.UUID  `db:"recipient_id"`
	Subtotal        int64      `db:"subtotal"`
	PlatformFee     int64      `db:"platform_fee"`
	Total           int64      `db:"total"`
	RecipientPayout int64      `db:"recipient_payout"`
	Currency        string     `db:"currency"`
	Status          string     `db:"status"`
	PaidAt          *time.Time `db:"paid_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

// PaymentRow is one ledger payment with its invoice number, if any.
type PaymentRow struct {
	ID              uuid.UUID  `db:"id"`
	BookingID       uuid.UUID  `db:"booking_id"`
	AuthorizationID string     `db:"authorization_id"`
	TransferID      *string    `db:"transfer_id"`
	Amount          int64      `db:"amount"`
	PlatformFee     int64      `db:"platform_fee"`
	RecipientAmount int64      `db:"recipient_amount"`
	Currency        string     `db:"currency"`
	Status          string     `db:"status"`
	InvoiceNumber   *string    `db:"invoice_number"`
	CapturedAt      *time.Time `db:"captured_at"`
	TransferredAt   *time.Time `db:"transferred_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

type StatsRow struct {
	Total    int64 `db:"total"`
	Paid     int64 `db:"paid"`
	Refunded int64 `db:"refunded"`
	Amount   int64 `db:"amount"`
}

// Repository reads the settlement tables with hand-written SQL. It never
// writes.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) BookingPayment(ctx context.Context, bookingID uuid.UUID) (*BookingPaymentRow, error) {
	query := r.db.Rebind(`
		SELECT b.id AS booking_id, b.payer_id, b.recipient_id, b.gross_amount, b.currency,
		       b.payment_status, b.authorization_id, b.payout_pending, b.payment_captured_at,
		       i.id AS invoice_id, i.invoice_number
		FROM bookings b
		LEFT JOIN invoices i ON i.booking_id = b.id
		WHERE b.id = ?`)

	var row BookingPaymentRow
	if err := r.db.GetContext(ctx, &row, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (r *Repository) Invoice(ctx context.Context, id uuid.UUID) (*InvoiceRow, error) {
	query := r.db.Rebind(`
		SELECT id, invoice_number, booking_id, payer_id, recipient_id, subtotal, platform_fee,
		       total, recipient_payout, currency, status, paid_at, created_at
		FROM invoices
		WHERE id = ?`)

	var row InvoiceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &row, nil
}

// payments lists the ledger rows where column matches userID, newest first.
// column is payer_id or recipient_id.
func (r *Repository) payments(ctx context.Context, column string, userID uuid.UUID, limit, offset int) ([]PaymentRow, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM payments WHERE `+column+` = ?`), userID); err != nil {
		return nil, 0, err
	}

	query := r.db.Rebind(`
		SELECT p.id, p.booking_id, p.authorization_id, p.transfer_id, p.amount, p.platform_fee,
		       p.recipient_amount, p.currency, p.status, i.invoice_number,
		       p.captured_at, p.transferred_at, p.created_at
		FROM payments p
		LEFT JOIN invoices i ON i.id = p.invoice_id
		WHERE p.` + column + ` = ?
		ORDER BY p.created_at DESC
		LIMIT ? OFFSET ?`)

	rows := []PaymentRow{}
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) PaymentsByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]PaymentRow, int, error) {
	return r.payments(ctx, "payer_id", payerID, limit, offset)
}

func (r *Repository) PaymentsByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]PaymentRow, int, error) {
	return r.payments(ctx, "recipient_id", recipientID, limit, offset)
}

// InvoiceStats aggregates invoices where the user is the payer and where the
// user is the recipient. Amount is the total spent or earned on paid invoices.
func (r *Repository) InvoiceStats(ctx context.Context, userID uuid.UUID) (asPayer, asRecipient StatsRow, err error) {
	const stats = `
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid,
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS refunded,
		       COALESCE(SUM(CASE WHEN status = ? THEN %s ELSE 0 END), 0) AS amount
		FROM invoices
		WHERE %s = ?`

	paid, refunded := string(domain.InvoicePaid), string(domain.InvoiceRefunded)
	if err = r.db.GetContext(ctx, &asPayer, r.db.Rebind(fmt.Sprintf(stats, "total", "payer_id")),
		paid, refunded, paid, userID); err != nil {
		return
	}
	err = r.db.GetContext(ctx, &asRecipient, r.db.Rebind(fmt.Sprintf(stats, "recipient_payout", "recipient_id")),
		paid, refunded, paid, userID)
	return
}
