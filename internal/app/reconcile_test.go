package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"marketpay/internal/domain"
	"marketpay/internal/gateway"
)

func TestReconcile(t *testing.T) {
	a, _, gw := newTestApp(t)
	ctx := context.Background()

	// a failed event the service now ignores, and one whose payload is unreadable
	for id, payload := range map[string]string{
		"evt_ignored": `{"id":"evt_ignored","object":"event","type":"customer.created","data":{"object":{}}}`,
		"evt_garbled": `{"id":`,
	} {
		_, err := a.WebhookEvents.Record(ctx, &domain.WebhookEvent{EventID: id, EventType: "customer.created", Payload: datatypes.JSON(payload)})
		require.NoError(t, err)
		require.NoError(t, a.WebhookEvents.MarkFailed(ctx, id, "earlier failure"))
	}

	staleAuth, freshAuth := "pi_stale", "pi_fresh"
	stale := &domain.Booking{PayerID: uuid.New(), RecipientID: uuid.New(), GrossAmount: 1000, Currency: "aud",
		PaymentStatus: domain.PaymentPending, AuthorizationID: &staleAuth}
	fresh := &domain.Booking{PayerID: uuid.New(), RecipientID: uuid.New(), GrossAmount: 1000, Currency: "aud",
		PaymentStatus: domain.PaymentPending, AuthorizationID: &freshAuth}
	require.NoError(t, a.Bookings.Create(ctx, stale))
	require.NoError(t, a.Bookings.Create(ctx, fresh))
	require.NoError(t, a.db.Model(&domain.Booking{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-48*time.Hour)).Error)

	gw.On("GetAuthorization", mock.Anything, staleAuth).
		Return(&gateway.Authorization{ID: staleAuth, Status: gateway.StatusCanceled, Amount: 1000, Currency: "aud"}, nil).Once()

	report, err := a.Reconcile(ctx, ReconcileOptions{MaxAttempts: 5, BatchSize: 10, StaleAfter: 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 1, report.EventsReplayed)
	assert.Equal(t, 1, report.EventsFailed)
	assert.Equal(t, map[string]int{"cancelled": 1}, report.Resynced)
	assert.Zero(t, report.ResyncFailed)
	gw.AssertExpectations(t)

	got, err := a.Bookings.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCancelled, got.PaymentStatus)

	stored, err := a.WebhookEvents.GetByEventID(ctx, "evt_ignored")
	require.NoError(t, err)
	assert.True(t, stored.Processed())
}
