package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketpay/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err, domain.ErrBookingNotFound)
	}
	return &b, nil
}

func (r *BookingRepository) GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("authorization_id = ?", authorizationID).First(&b).Error; err != nil {
		return nil, notFound(err, domain.ErrBookingNotFound)
	}
	return &b, nil
}

// MarkCheckoutStarted records the gateway ids of a new checkout attempt and
// moves the booking to pending. Settled bookings, refunded ones included, are
// left alone and reported as ErrAlreadyPaid.
func (r *BookingRepository) MarkCheckoutStarted(ctx context.Context, bookingID uuid.UUID, authorizationID, sessionID *string) error {
	updates := map[string]interface{}{
		"payment_status": domain.PaymentPending,
		"updated_at":     time.Now().UTC(),
	}
	if authorizationID != nil {
		updates["authorization_id"] = *authorizationID
	}
	if sessionID != nil {
		updates["checkout_session_id"] = *sessionID
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND payment_status NOT IN ? AND invoice_id IS NULL", bookingID, domain.SettledStatuses()).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, bookingID); err != nil {
		return err
	}
	return domain.ErrAlreadyPaid
}

// AttachAuthorization stores the authorization id revealed after checkout
// completion. An id already on the booking is never replaced.
func (r *BookingRepository) AttachAuthorization(ctx context.Context, bookingID uuid.UUID, authorizationID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND (authorization_id IS NULL OR authorization_id = '' OR authorization_id = ?)", bookingID, authorizationID).
		Updates(map[string]interface{}{
			"authorization_id": authorizationID,
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// UpdatePaymentStatus writes status unless the booking already holds a status
// that outranks it. It reports whether a row changed.
func (r *BookingRepository) UpdatePaymentStatus(ctx context.Context, bookingID uuid.UUID, status domain.PaymentStatus) (bool, error) {
	q := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", bookingID)
	if preserved := domain.PreservedStatuses(status); len(preserved) > 0 {
		q = q.Where("payment_status NOT IN ?", preserved)
	}
	res := q.Updates(map[string]interface{}{
		"payment_status": status,
		"updated_at":     time.Now().UTC(),
	})
	return res.RowsAffected > 0, res.Error
}

// ListStalePending returns bookings whose checkout started before cutoff and
// never reached a terminal status.
func (r *BookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND authorization_id IS NOT NULL AND authorization_id <> '' AND updated_at < ?", domain.PaymentPending, cutoff).
		Order("updated_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
