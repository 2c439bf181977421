package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConnectedAccount struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"recipient_id"`
	ExternalAccountID   string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"external_account_id"`
	AccountType         string    `gorm:"type:varchar(20);not null;default:'express'" json:"account_type"`
	Country             string    `gorm:"type:varchar(2)" json:"country"`
	Currency            string    `gorm:"type:varchar(3)" json:"currency"`
	ChargesEnabled      bool      `gorm:"not null;default:false" json:"charges_enabled"`
	PayoutsEnabled      bool      `gorm:"not null;default:false" json:"payouts_enabled"`
	DetailsSubmitted    bool      `gorm:"not null;default:false" json:"details_submitted"`
	OnboardingCompleted bool      `gorm:"not null;default:false" json:"onboarding_completed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (ConnectedAccount) TableName() string { return "connected_accounts" }

func (a *ConnectedAccount) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// SetCapabilities copies the gateway flags and recomputes onboarding completion.
func (a *ConnectedAccount) SetCapabilities(chargesEnabled, payoutsEnabled, detailsSubmitted bool) {
	a.ChargesEnabled = chargesEnabled
	a.PayoutsEnabled = payoutsEnabled
	a.DetailsSubmitted = detailsSubmitted
	a.OnboardingCompleted = chargesEnabled && payoutsEnabled && detailsSubmitted
}

func (a *ConnectedAccount) Payable() bool {
	return a != nil && a.ExternalAccountID != "" && a.OnboardingCompleted
}
