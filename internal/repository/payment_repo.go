package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpay/internal/domain"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) GetByAuthorizationID(ctx context.Context, authorizationID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("authorization_id = ?", authorizationID).First(&p).Error; err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound)
	}
	return &p, nil
}

func (r *PaymentRepository) GetByChargeID(ctx context.Context, chargeID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("charge_id = ?", chargeID).First(&p).Error; err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound)
	}
	return &p, nil
}

// UpsertPending inserts a pending row for p.AuthorizationID. An existing row
// only has its descriptive fields refreshed while it is still pending.
func (r *PaymentRepository) UpsertPending(ctx context.Context, p *domain.Payment) error {
	p.Status = domain.PaymentPending
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "authorization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"booking_id", "payer_id", "recipient_id", "amount", "platform_fee", "recipient_amount", "currency", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "payments", Name: "status"}, Value: domain.PaymentPending},
			}},
		}).
		Create(p).Error
}

// SetStatus writes an absolute status keyed by authorization id, guarded by
// status precedence. It reports whether a row changed.
func (r *PaymentRepository) SetStatus(ctx context.Context, authorizationID string, status domain.PaymentStatus, failureReason string) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}
	q := r.db.WithContext(ctx).Model(&domain.Payment{}).Where("authorization_id = ?", authorizationID)
	if preserved := domain.PreservedStatuses(status); len(preserved) > 0 {
		q = q.Where("status NOT IN ?", preserved)
	}
	res := q.Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *PaymentRepository) SetChargeID(ctx context.Context, authorizationID, chargeID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("authorization_id = ? AND (charge_id IS NULL OR charge_id = '')", authorizationID).
		Update("charge_id", chargeID).Error
}

// AttachTransfer records the transfer on the payment for authorizationID.
func (r *PaymentRepository) AttachTransfer(ctx context.Context, authorizationID, transferID string, at time.Time) (bool, error) {
	return r.attachTransfer(ctx, "authorization_id = ?", authorizationID, transferID, at)
}

// AttachTransferByCharge records the transfer on the payment whose charge
// funded it.
func (r *PaymentRepository) AttachTransferByCharge(ctx context.Context, chargeID, transferID string, at time.Time) (bool, error) {
	return r.attachTransfer(ctx, "charge_id = ?", chargeID, transferID, at)
}

// UpsertTransfer attaches the transfer to p.AuthorizationID, creating a
// pending placeholder row when the authorization has not been seen yet.
func (r *PaymentRepository) UpsertTransfer(ctx context.Context, p *domain.Payment) error {
	if p.Status == "" {
		p.Status = domain.PaymentPending
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "authorization_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"transfer_id", "transferred_at", "updated_at"}),
		}).
		Create(p).Error
}

func (r *PaymentRepository) attachTransfer(ctx context.Context, where string, key, transferID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where(where, key).
		Updates(map[string]interface{}{
			"transfer_id":    transferID,
			"transferred_at": at,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}
