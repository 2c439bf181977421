package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpay/internal/domain"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Upsert writes the payout keyed by its gateway id. A failed payout stays
// failed; the gateway may fail a payout after reporting it paid, never the
// reverse.
func (r *PayoutRepository) Upsert(ctx context.Context, p *domain.Payout) error {
	onConflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "payout_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_account_id", "recipient_id", "amount", "currency", "status", "failure_reason", "paid_at", "updated_at",
		}),
	}
	if p.Status != domain.PayoutFailed {
		onConflict.Where = clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: "payouts", Name: "status"}, Value: domain.PayoutFailed},
		}}
	}
	return r.db.WithContext(ctx).Clauses(onConflict).Create(p).Error
}

func (r *PayoutRepository) GetByPayoutID(ctx context.Context, payoutID string) (*domain.Payout, error) {
	var p domain.Payout
	if err := r.db.WithContext(ctx).Where("payout_id = ?", payoutID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
