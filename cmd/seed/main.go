package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/database"
	"marketpay/internal/domain"
	jwtsvc "marketpay/internal/pkg/jwt"
	"marketpay/internal/pkg/logger"
)

// seed creates a payable recipient and a few confirmed bookings in a local
// database and prints bearer tokens for trying the payment flow by hand.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", false).WithError(err).Fatal("config")
	}
	log := logger.New(cfg.LogLevel, false)
	if cfg.IsProdLike() {
		log.Fatal("refusing to seed a prod-like environment")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connect")
	}
	if err := database.Prepare(db, cfg.DatabaseURL, true); err != nil {
		log.WithError(err).Fatal("database migrate")
	}

	accountID := os.Getenv("SEED_ACCOUNT_ID")
	if accountID == "" {
		accountID = "acct_seed_dev"
	}

	payer, recipient := uuid.New(), uuid.New()
	ctx := context.Background()
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// reruns keep paying the same recipient
		var existing domain.ConnectedAccount
		err := tx.Where("external_account_id = ?", accountID).First(&existing).Error
		switch {
		case err == nil:
			recipient = existing.RecipientID
		case errors.Is(err, gorm.ErrRecordNotFound):
			acc := &domain.ConnectedAccount{RecipientID: recipient, ExternalAccountID: accountID, Country: cfg.DefaultCountry}
			acc.SetCapabilities(true, true, true)
			if err := tx.Create(acc).Error; err != nil {
				return fmt.Errorf("connected account: %w", err)
			}
		default:
			return fmt.Errorf("connected account: %w", err)
		}
		for i, amount := range []int64{50000, 12000, 7500} {
			b := &domain.Booking{
				PayerID:     payer,
				RecipientID: recipient,
				Title:       fmt.Sprintf("Seed booking %d", i+1),
				GrossAmount: amount,
				Currency:    cfg.DefaultCurrency,
				Status:      domain.BookingConfirmed,
			}
			if err := tx.Create(b).Error; err != nil {
				return fmt.Errorf("booking %d: %w", i+1, err)
			}
			log.WithFields(logrus.Fields{"booking_id": b.ID, "amount": amount}).Info("booking created")
		}
		return nil
	}); err != nil {
		log.WithError(err).Fatal("seed")
	}

	tokens := jwtsvc.New(cfg.JWTSecret, 7*24*time.Hour)
	payerToken, err := tokens.GenerateToken(payer, "client")
	if err != nil {
		log.WithError(err).Fatal("payer token")
	}
	recipientToken, err := tokens.GenerateToken(recipient, "freelancer")
	if err != nil {
		log.WithError(err).Fatal("recipient token")
	}

	log.WithFields(logrus.Fields{
		"payer_id":     payer,
		"recipient_id": recipient,
		"account_id":   accountID,
	}).Info("seed completed")
	fmt.Printf("PAYER_TOKEN=%s\nRECIPIENT_TOKEN=%s\n", payerToken, recipientToken)
}
