package database

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketpay/internal/domain"

	_ "modernc.org/sqlite"
)

// Models is every table the settlement service owns.
func Models() []any {
	return []any{
		&domain.Booking{},
		&domain.ConnectedAccount{},
		&domain.Invoice{},
		&domain.InvoiceSequence{},
		&domain.Payment{},
		&domain.Payout{},
		&domain.WebhookEvent{},
	}
}

func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	if IsPostgres(dsn) {
		logrus.Info("connecting to PostgreSQL")
		return gorm.Open(postgres.Open(dsn), cfg)
	}

	logrus.WithField("dsn", dsn).Info("using SQLite for local development")

	db, err := gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		cfg,
	)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one writer; the shared-cache memory database locks tables otherwise
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate builds the schema with gorm; used for SQLite where the
// embedded PostgreSQL migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
