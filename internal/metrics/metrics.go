package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the settlement counters and histograms.
type Metrics struct {
	// Checkouts and intents by result
	CheckoutsTotal *prometheus.CounterVec

	// Captures by result: captured, replayed, not_capturable, failed
	CapturesTotal       *prometheus.CounterVec
	CapturedAmountTotal *prometheus.CounterVec
	PlatformFeeTotal    *prometheus.CounterVec

	TransferFailuresTotal  prometheus.Counter
	TransferReversalsTotal prometheus.Counter
	FeeDiscrepancyTotal    prometheus.Counter

	OnboardingTotal *prometheus.CounterVec

	// Webhook events by type and outcome
	WebhookEventsTotal *prometheus.CounterVec

	GatewayDuration *prometheus.HistogramVec

	EventsPublishedTotal *prometheus.CounterVec
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CheckoutsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_checkouts_total",
				Help: "Checkout sessions and intents started",
			},
			[]string{"kind", "result"},
		),
		CapturesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_captures_total",
				Help: "Capture attempts by result",
			},
			[]string{"result"},
		),
		CapturedAmountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_captured_amount_minor_total",
				Help: "Captured gross amount in minor units",
			},
			[]string{"currency"},
		),
		PlatformFeeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_platform_fee_minor_total",
				Help: "Platform fee retained in minor units",
			},
			[]string{"currency"},
		),
		TransferFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "settlement_transfer_failures_total",
			Help: "Transfers to connected accounts that failed after capture",
		}),
		TransferReversalsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "settlement_transfer_reversals_total",
			Help: "Transfer reversals reported by the gateway",
		}),
		FeeDiscrepancyTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "settlement_fee_discrepancy_total",
			Help: "Captures whose fee differs from the fee quoted at checkout",
		}),
		OnboardingTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_onboarding_total",
				Help: "Connected account onboarding requests",
			},
			[]string{"result"},
		),
		WebhookEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_webhook_events_total",
				Help: "Gateway webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		GatewayDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "settlement_gateway_request_duration_seconds",
				Help:    "Gateway round-trip latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"operation", "outcome"},
		),
		EventsPublishedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_events_published_total",
				Help: "Settlement events handed to publishers",
			},
			[]string{"sink", "outcome"},
		),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveGateway(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.GatewayDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveCapture(currency string, gross, platformFee int64) {
	m.CapturesTotal.WithLabelValues("captured").Inc()
	m.CapturedAmountTotal.WithLabelValues(currency).Add(float64(gross))
	m.PlatformFeeTotal.WithLabelValues(currency).Add(float64(platformFee))
}
