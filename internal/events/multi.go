package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"marketpay/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Sink is a named publisher inside a Fanout.
type Sink struct {
	Name      string
	Publisher Publisher
}

// Fanout publishes each event to every sink. Sink errors are logged and
// counted but never returned.
type Fanout struct {
	sinks   []Sink
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewFanout(log logrus.FieldLogger, m *metrics.Metrics, sinks ...Sink) *Fanout {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Fanout{sinks: sinks, log: log, metrics: m}
}

func (f *Fanout) Publish(ctx context.Context, ev SettlementEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, s := range f.sinks {
		if err := s.Publisher.Publish(ctx, ev); err != nil {
			f.metrics.EventsPublishedTotal.WithLabelValues(s.Name, "error").Inc()
			f.log.WithError(err).WithFields(logrus.Fields{
				"sink":       s.Name,
				"event_type": ev.Type,
				"booking_id": ev.BookingID,
			}).Warn("settlement event publish failed")
			continue
		}
		f.metrics.EventsPublishedTotal.WithLabelValues(s.Name, "ok").Inc()
	}
	return nil
}
