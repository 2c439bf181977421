package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type ReconcileOptions struct {
	MaxAttempts int
	BatchSize   int
	StaleAfter  time.Duration
}

type ReconcileReport struct {
	EventsReplayed int
	EventsFailed   int
	Resynced       map[string]int
	ResyncFailed   int
}

// Reconcile replays failed webhook events, then resyncs bookings whose
// checkout has been pending longer than StaleAfter. Per-item failures are
// logged and counted; only listing errors are returned.
func (a *App) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	report := &ReconcileReport{Resynced: map[string]int{}}
	log := a.log.WithField("component", "reconcile")

	failed, err := a.WebhookEvents.ListFailed(ctx, opts.MaxAttempts, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, ev := range failed {
		if err := a.Webhooks.Replay(ctx, ev); err != nil {
			report.EventsFailed++
			log.WithError(err).WithField("event_id", ev.EventID).Warn("webhook replay failed")
			continue
		}
		report.EventsReplayed++
	}

	cutoff := time.Now().UTC().Add(-opts.StaleAfter)
	stale, err := a.Bookings.ListStalePending(ctx, cutoff, opts.BatchSize)
	if err != nil {
		return report, err
	}
	for _, b := range stale {
		if b.AuthorizationID == nil {
			continue
		}
		res, err := a.Capture.Resync(ctx, *b.AuthorizationID)
		if err != nil {
			report.ResyncFailed++
			log.WithError(err).WithFields(logrus.Fields{
				"booking_id":       b.ID,
				"authorization_id": *b.AuthorizationID,
			}).Warn("resync failed")
			continue
		}
		report.Resynced[res.State]++
	}

	log.WithFields(logrus.Fields{
		"events_replayed": report.EventsReplayed,
		"events_failed":   report.EventsFailed,
		"resynced":        report.Resynced,
		"resync_failed":   report.ResyncFailed,
	}).Info("reconcile completed")
	return report, nil
}
