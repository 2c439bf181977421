package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketpay/internal/domain"
)

type ConnectedAccountRepository struct {
	db *gorm.DB
}

func NewConnectedAccountRepository(db *gorm.DB) *ConnectedAccountRepository {
	return &ConnectedAccountRepository{db: db}
}

func (r *ConnectedAccountRepository) Create(ctx context.Context, a *domain.ConnectedAccount) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *ConnectedAccountRepository) GetByRecipientID(ctx context.Context, recipientID uuid.UUID) (*domain.ConnectedAccount, error) {
	var a domain.ConnectedAccount
	if err := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).First(&a).Error; err != nil {
		return nil, notFound(err, domain.ErrAccountNotFound)
	}
	return &a, nil
}

func (r *ConnectedAccountRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.ConnectedAccount, error) {
	var a domain.ConnectedAccount
	if err := r.db.WithContext(ctx).Where("external_account_id = ?", externalID).First(&a).Error; err != nil {
		return nil, notFound(err, domain.ErrAccountNotFound)
	}
	return &a, nil
}

// SyncCapabilities sets the gateway flags of a known account by its external
// id. When the account is unknown and recipientID is set, the row is created.
// It returns the stored account, or ErrAccountNotFound when nothing matched.
func (r *ConnectedAccountRepository) SyncCapabilities(ctx context.Context, externalID string, recipientID *uuid.UUID, chargesEnabled, payoutsEnabled, detailsSubmitted bool) (*domain.ConnectedAccount, error) {
	probe := domain.ConnectedAccount{}
	probe.SetCapabilities(chargesEnabled, payoutsEnabled, detailsSubmitted)

	update := func() (int64, error) {
		res := r.db.WithContext(ctx).
			Model(&domain.ConnectedAccount{}).
			Where("external_account_id = ?", externalID).
			Updates(map[string]interface{}{
				"charges_enabled":      probe.ChargesEnabled,
				"payouts_enabled":      probe.PayoutsEnabled,
				"details_submitted":    probe.DetailsSubmitted,
				"onboarding_completed": probe.OnboardingCompleted,
				"updated_at":           time.Now().UTC(),
			})
		return res.RowsAffected, res.Error
	}

	n, err := update()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if recipientID == nil {
			return nil, domain.ErrAccountNotFound
		}
		acc := &domain.ConnectedAccount{RecipientID: *recipientID, ExternalAccountID: externalID}
		acc.SetCapabilities(chargesEnabled, payoutsEnabled, detailsSubmitted)
		if err := r.Create(ctx, acc); err != nil {
			if !IsUniqueViolation(err) {
				return nil, err
			}
			if _, err := update(); err != nil {
				return nil, err
			}
		}
	}
	return r.GetByExternalID(ctx, externalID)
}
