package billing

import (
	"context"

	"github.com/google/uuid"

	"marketpay/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type readRepo interface {
	BookingPayment(ctx context.Context, bookingID uuid.UUID) (*BookingPaymentRow, error)
	Invoice(ctx context.Context, id uuid.UUID) (*InvoiceRow, error)
	PaymentsByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]PaymentRow, int, error)
	PaymentsByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]PaymentRow, int, error)
	InvoiceStats(ctx context.Context, userID uuid.UUID) (asPayer, asRecipient StatsRow, err error)
}

// Viewer is the caller of a read. Admins may read any booking or invoice.
type Viewer struct {
	UserID  uuid.UUID
	IsAdmin bool
}

func (v Viewer) canSee(payerID, recipientID uuid.UUID) bool {
	return v.IsAdmin || v.UserID == payerID || v.UserID == recipientID
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Service answers the UI and notification read paths over the ledger.
type Service struct {
	repo readRepo
}

func NewService(repo readRepo) *Service {
	return &Service{repo: repo}
}

func (s *Service) BookingPayment(ctx context.Context, v Viewer, bookingID uuid.UUID) (*BookingPaymentRow, error) {
	row, err := s.repo.BookingPayment(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !v.canSee(row.PayerID, row.RecipientID) {
		return nil, domain.ErrForbidden
	}
	return row, nil
}

func (s *Service) Invoice(ctx context.Context, v Viewer, id uuid.UUID) (*InvoiceRow, error) {
	row, err := s.repo.Invoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.canSee(row.PayerID, row.RecipientID) {
		return nil, domain.ErrForbidden
	}
	return row, nil
}

// PaymentHistory lists what the user paid as a payer.
func (s *Service) PaymentHistory(ctx context.Context, userID uuid.UUID, p Page) ([]PaymentRow, int, Page, error) {
	p = p.normalized()
	rows, total, err := s.repo.PaymentsByPayer(ctx, userID, p.Limit, p.Offset)
	return rows, total, p, err
}

// EarningsHistory lists what the user earned as a recipient.
func (s *Service) EarningsHistory(ctx context.Context, userID uuid.UUID, p Page) ([]PaymentRow, int, Page, error) {
	p = p.normalized()
	rows, total, err := s.repo.PaymentsByRecipient(ctx, userID, p.Limit, p.Offset)
	return rows, total, p, err
}

func (s *Service) InvoiceStats(ctx context.Context, userID uuid.UUID) (StatsRow, StatsRow, error) {
	return s.repo.InvoiceStats(ctx, userID)
}
