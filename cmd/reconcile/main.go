package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"marketpay/internal/app"
	"marketpay/internal/config"
	"marketpay/internal/database"
	"marketpay/internal/gateway"
	"marketpay/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", false).WithError(err).Fatal("config")
	}
	log := logger.New(cfg.LogLevel, cfg.IsProdLike())

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connect")
	}

	a, err := app.New(cfg, log, db, app.StripeGateway(cfg), gateway.NewSignatureVerifier(cfg.StripeWebhookSecret))
	if err != nil {
		log.WithError(err).Fatal("wiring")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := a.Reconcile(ctx, app.ReconcileOptions{
		MaxAttempts: cfg.WebhookMaxAttempts,
		BatchSize:   cfg.ReconcileBatchSize,
		StaleAfter:  cfg.ReconcileStaleAfter,
	})
	if err != nil {
		log.WithError(err).Fatal("reconcile")
	}
	if report.EventsFailed > 0 || report.ResyncFailed > 0 {
		os.Exit(1)
	}
}
