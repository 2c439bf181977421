// Package app wires repositories, gateway, event sinks and services into the
// HTTP router and the reconcile job.
package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/database"
	"marketpay/internal/events"
	"marketpay/internal/gateway"
	"marketpay/internal/metrics"
	"marketpay/internal/middleware"
	"marketpay/internal/modules/billing"
	"marketpay/internal/modules/capture"
	"marketpay/internal/modules/checkout"
	"marketpay/internal/modules/connect"
	"marketpay/internal/modules/fee"
	"marketpay/internal/modules/webhook"
	jwtsvc "marketpay/internal/pkg/jwt"
	"marketpay/internal/pkg/response"
	"marketpay/internal/repository"
)

// access tokens are issued elsewhere; the ttl only matters for GenerateToken
const tokenTTL = 24 * time.Hour

type App struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       *gorm.DB
	registry *prometheus.Registry
	jwt      *jwtsvc.Service
	// browser origins for CORS and the websocket upgrade
	origins  []string

	Metrics *metrics.Metrics
	Hub     *events.Hub
	kafka   *events.KafkaPublisher

	Bookings      *repository.BookingRepository
	WebhookEvents *repository.WebhookEventRepository

	Checkout *checkout.Service
	Capture  *capture.Service
	Connect  *connect.Service
	Webhooks *webhook.Service
	Billing  *billing.Service
}

// GatewayFactory builds the payment gateway once the app's metrics exist.
type GatewayFactory func(m *metrics.Metrics) gateway.Gateway

// New builds every service over db and the gateway. Kafka is only used when
// brokers are configured.
func New(cfg *config.Config, log *logrus.Logger, db *gorm.DB, newGateway GatewayFactory, verifier *gateway.SignatureVerifier) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	gw := newGateway(m)

	fees, err := fee.NewPolicy(cfg.FeeRate())
	if err != nil {
		return nil, err
	}
	sx, err := database.SQLX(db)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		db:       db,
		registry: registry,
		jwt:      jwtsvc.New(cfg.JWTSecret, tokenTTL),
		Metrics:  m,
		origins:  append([]string{cfg.PublicAppURL}, cfg.CORSAllowedOrigins...),
	}

	a.Hub = events.NewHub(a.origins)

	sinks := []events.Sink{{Name: "websocket", Publisher: a.Hub}}
	if len(cfg.KafkaBrokers) > 0 {
		a.kafka = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: a.kafka})
	}
	publisher := events.NewFanout(log.WithField("component", "events"), m, sinks...)

	a.Bookings = repository.NewBookingRepository(db)
	a.WebhookEvents = repository.NewWebhookEventRepository(db)
	accounts := repository.NewConnectedAccountRepository(db)
	payments := repository.NewPaymentRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	payouts := repository.NewPayoutRepository(db)
	settlement := repository.NewSettlementRepository(db)

	a.Checkout = checkout.NewService(a.Bookings, payments, accounts, gw, fees, publisher,
		log.WithField("component", "checkout"), m, cfg.DefaultCurrency)
	a.Capture = capture.NewService(a.Bookings, accounts, payments, settlement, gw, fees, publisher,
		log.WithField("component", "capture"), m)
	a.Connect = connect.NewService(accounts, gw, log.WithField("component", "connect"), m, connect.Config{
		DefaultCountry: cfg.DefaultCountry,
		PublicAppURL:   cfg.PublicAppURL,
	})
	a.Webhooks = webhook.NewService(verifier, webhook.Repositories{
		Ledger:   a.WebhookEvents,
		Accounts: accounts,
		Bookings: a.Bookings,
		Payments: payments,
		Invoices: invoices,
		Payouts:  payouts,
	}, publisher, log.WithField("component", "webhook"), m)
	a.Billing = billing.NewService(billing.NewRepository(sx))

	return a, nil
}

// StripeGateway is the production GatewayFactory.
func StripeGateway(cfg *config.Config) GatewayFactory {
	return func(m *metrics.Metrics) gateway.Gateway {
		return gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Timeout:   cfg.GatewayTimeout,
		}, m)
	}
}

func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.ErrorLogger(a.log),
		middleware.CORS(a.origins),
	)

	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	billingHandler := billing.NewHandler(a.Billing, a.Hub)

	v1 := r.Group("/api/v1")
	{
		webhook.NewHandler(a.Webhooks).RegisterPublicRoutes(v1)

		internal := v1.Group("")
		internal.Use(middleware.InternalTokenAuth(a.cfg.InternalTokenHash, a.log))
		capture.NewHandler(a.Capture).RegisterInternalRoutes(internal)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(a.jwt))
		checkout.NewHandler(a.Checkout).RegisterRoutes(protected)
		connect.NewHandler(a.Connect).RegisterRoutes(protected)
		billingHandler.RegisterRoutes(protected)

		stream := v1.Group("")
		stream.Use(middleware.QueryToken(), middleware.JWTAuth(a.jwt))
		billingHandler.RegisterStreamRoutes(stream)
	}

	return r
}

func (a *App) health(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database is not reachable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Close drops websocket clients and flushes the Kafka writer.
func (a *App) Close() {
	a.Hub.Close()
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.WithError(err).Warn("closing kafka publisher")
		}
	}
}
