package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"marketpay/internal/app"
	"marketpay/internal/config"
	"marketpay/internal/database"
	"marketpay/internal/gateway"
	"marketpay/internal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", false).WithError(err).Fatal("config")
	}
	log := logger.New(cfg.LogLevel, cfg.IsProdLike())

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connect")
	}
	if err := database.Prepare(db, cfg.DatabaseURL, cfg.MigrationsEnabled); err != nil {
		log.WithError(err).Fatal("database migrate")
	}

	a, err := app.New(cfg, log, db, app.StripeGateway(cfg), gateway.NewSignatureVerifier(cfg.StripeWebhookSecret))
	if err != nil {
		log.WithError(err).Fatal("wiring")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("settlement api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}
