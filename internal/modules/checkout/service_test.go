package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketpay/internal/database"
	"marketpay/internal/domain"
	"marketpay/internal/events"
	"marketpay/internal/gateway"
	"marketpay/internal/gateway/gatewaytest"
	"marketpay/internal/metrics"
	"marketpay/internal/modules/fee"
	"marketpay/internal/repository"
)

type recordingPublisher struct {
	got []events.SettlementEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.SettlementEvent) error {
	p.got = append(p.got, ev)
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.SettlementEvent) error {
	return errors.New("broker unreachable")
}

type fixture struct {
	db        *gorm.DB
	svc       *Service
	gw        *gatewaytest.Mock
	bookings  *repository.BookingRepository
	payments  *repository.PaymentRepository
	accounts  *repository.ConnectedAccountRepository
	publisher *recordingPublisher
	metrics   *metrics.Metrics
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:checkout_test_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:        db,
		gw:        &gatewaytest.Mock{},
		bookings:  repository.NewBookingRepository(db),
		payments:  repository.NewPaymentRepository(db),
		accounts:  repository.NewConnectedAccountRepository(db),
		publisher: &recordingPublisher{},
		metrics:   metrics.NewNop(),
	}
	policy, err := fee.NewPolicy(fee.DefaultRate)
	require.NoError(t, err)
	logger, _ := logtest.NewNullLogger()
	f.svc = NewService(f.bookings, f.payments, f.accounts, f.gw, policy, f.publisher, logger, f.metrics, "AUD")
	return f
}

func (f *fixture) seedBooking(t *testing.T, gross int64, payable bool) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	b := &domain.Booking{
		PayerID:       uuid.New(),
		RecipientID:   uuid.New(),
		Title:         "Portrait session",
		GrossAmount:   gross,
		Currency:      "aud",
		Status:        domain.BookingConfirmed,
		PaymentStatus: domain.PaymentUnpaid,
	}
	require.NoError(t, f.bookings.Create(ctx, b))
	acc := &domain.ConnectedAccount{RecipientID: b.RecipientID, ExternalAccountID: "acct_" + b.RecipientID.String()[:8]}
	acc.SetCapabilities(payable, payable, payable)
	require.NoError(t, f.accounts.Create(ctx, acc))
	return b
}

func (f *fixture) request(b *domain.Booking, amount int64) StartCheckoutRequest {
	return StartCheckoutRequest{
		BookingID:            b.ID,
		PayerID:              b.PayerID,
		Amount:               amount,
		PayerEmail:           "client@example.com",
		RecipientDisplayName: "Jane",
		SuccessURL:           "https://app.example.com/ok",
		CancelURL:            "https://app.example.com/cancel",
	}
}

func TestStartCheckout_SplitsFeeAndMarksPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, 50000, true)

	var captured gateway.CheckoutParams
	f.gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(p gateway.CheckoutParams) bool {
		captured = p
		return true
	})).Return(&gateway.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1", AuthorizationID: "pi_1"}, nil).Once()

	res, err := f.svc.StartCheckout(ctx, f.request(b, 50000))
	require.NoError(t, err)
	assert.Equal(t, "cs_1", res.SessionID)
	assert.Equal(t, "https://pay.example.com/cs_1", res.RedirectURL)
	assert.Equal(t, "pi_1", res.AuthorizationID)

	assert.Equal(t, int64(50000), captured.Amount)
	assert.Equal(t, int64(5000), captured.PlatformFee)
	assert.Equal(t, "aud", captured.Currency)
	assert.Equal(t, "Booking with Jane", captured.ProductName)
	assert.Equal(t, "booking_"+b.ID.String(), captured.TransferGroup)
	assert.Equal(t, b.ID.String(), captured.Metadata[gateway.MetaBookingID])
	assert.Equal(t, b.PayerID.String(), captured.Metadata[gateway.MetaPayerID])
	assert.Equal(t, b.RecipientID.String(), captured.Metadata[gateway.MetaRecipientID])
	assert.Equal(t, "5000", captured.Metadata[gateway.MetaPlatformFee])

	stored, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, stored.PaymentStatus)
	require.NotNil(t, stored.AuthorizationID)
	assert.Equal(t, "pi_1", *stored.AuthorizationID)
	require.NotNil(t, stored.CheckoutSessionID)
	assert.Equal(t, "cs_1", *stored.CheckoutSessionID)

	p, err := f.payments.GetByAuthorizationID(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, int64(45000), p.RecipientAmount)

	require.Len(t, f.publisher.got, 1)
	assert.Equal(t, events.CheckoutStarted, f.publisher.got[0].Type)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CheckoutsTotal.WithLabelValues("session", "ok")))
}

func TestStartCheckout_SessionWithoutAuthorizationSkipsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, 12345, true)

	f.gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&gateway.CheckoutSession{ID: "cs_2", URL: "https://pay/cs_2"}, nil).Once()

	res, err := f.svc.StartCheckout(ctx, f.request(b, 12345))
	require.NoError(t, err)
	assert.Empty(t, res.AuthorizationID)

	var count int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStartCheckout_RecipientNotPayable(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, 50000, false)

	_, err := f.svc.StartCheckout(context.Background(), f.request(b, 50000))
	require.ErrorIs(t, err, domain.ErrRecipientNotPayable)
	assert.Equal(t, "recipient has not completed payment setup", err.Error())

	var count int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
	f.gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CheckoutsTotal.WithLabelValues("session", "rejected")))
}

func TestStartCheckout_RecipientWithoutAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := &domain.Booking{PayerID: uuid.New(), RecipientID: uuid.New(), GrossAmount: 1000, Currency: "aud", Status: domain.BookingConfirmed}
	require.NoError(t, f.bookings.Create(ctx, b))

	_, err := f.svc.StartCheckout(ctx, f.request(b, 1000))
	assert.ErrorIs(t, err, domain.ErrRecipientNotPayable)
}

func TestStartCheckout_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown booking", func(t *testing.T) {
		_, err := f.svc.StartCheckout(ctx, StartCheckoutRequest{BookingID: uuid.New(), PayerID: uuid.New(), Amount: 100})
		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	})

	t.Run("not the payer", func(t *testing.T) {
		b := f.seedBooking(t, 100, true)
		req := f.request(b, 100)
		req.PayerID = uuid.New()
		_, err := f.svc.StartCheckout(ctx, req)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("already paid", func(t *testing.T) {
		b := f.seedBooking(t, 100, true)
		_, err := f.bookings.UpdatePaymentStatus(ctx, b.ID, domain.PaymentCaptured)
		require.NoError(t, err)
		_, err = f.svc.StartCheckout(ctx, f.request(b, 100))
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	})

	t.Run("refunded", func(t *testing.T) {
		b := f.seedBooking(t, 100, true)
		_, err := f.bookings.UpdatePaymentStatus(ctx, b.ID, domain.PaymentRefunded)
		require.NoError(t, err)
		_, err = f.svc.StartCheckout(ctx, f.request(b, 100))
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
		_, err = f.svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID, PayerID: b.PayerID, Amount: 100})
		assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	})

	t.Run("cancelled", func(t *testing.T) {
		b := f.seedBooking(t, 100, true)
		require.NoError(t, f.db.Model(&domain.Booking{}).Where("id = ?", b.ID).Update("status", domain.BookingCancelled).Error)
		_, err := f.svc.StartCheckout(ctx, f.request(b, 100))
		assert.ErrorIs(t, err, domain.ErrBookingCancelled)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		b := f.seedBooking(t, 100, true)
		_, err := f.svc.StartCheckout(ctx, f.request(b, 99))
		assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		b := f.seedBooking(t, 0, true)
		_, err := f.svc.StartCheckout(ctx, f.request(b, 0))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	f.gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	f.gw.AssertNotCalled(t, "CreateAuthorization", mock.Anything, mock.Anything)
}

func TestStartCheckout_GatewayFailureLeavesBookingUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, 50000, true)

	f.gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("checkout: %w", domain.ErrGatewayUnavailable)).Once()

	_, err := f.svc.StartCheckout(ctx, f.request(b, 50000))
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	stored, err := f.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, stored.PaymentStatus)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.CheckoutsTotal.WithLabelValues("session", "gateway_error")))
}

func TestCreateIntent_ReturnsClientSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, 33333, true)

	f.gw.On("CreateAuthorization", mock.Anything, mock.MatchedBy(func(p gateway.SplitParams) bool {
		return p.Amount == 33333 && p.PlatformFee == 3333 && p.Metadata[gateway.MetaBookingID] == b.ID.String()
	})).Return(&gateway.Authorization{ID: "pi_i", ClientSecret: "pi_i_secret_x", Status: "requires_payment_method"}, nil).Once()

	res, err := f.svc.CreateIntent(ctx, CreateIntentRequest{BookingID: b.ID, PayerID: b.PayerID, Amount: 33333})
	require.NoError(t, err)
	assert.Equal(t, "pi_i_secret_x", res.ClientSecret)
	assert.Equal(t, int64(3333), res.PlatformFee)
	assert.Equal(t, int64(30000), res.RecipientAmount)

	p, err := f.payments.GetByAuthorizationID(ctx, "pi_i")
	require.NoError(t, err)
	assert.Equal(t, b.ID, p.BookingID)
	f.gw.AssertExpectations(t)
}

func TestStartCheckout_PublishFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.seedBooking(t, 50000, true)

	logger, hook := logtest.NewNullLogger()
	policy, err := fee.NewPolicy(fee.DefaultRate)
	require.NoError(t, err)
	svc := NewService(f.bookings, f.payments, f.accounts, f.gw, policy, failingPublisher{}, logger, f.metrics, "AUD")

	f.gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&gateway.CheckoutSession{ID: "cs_pub", URL: "https://pay.example.com/cs_pub", AuthorizationID: "pi_pub"}, nil).Once()

	res, err := svc.StartCheckout(ctx, f.request(b, 50000))
	require.NoError(t, err)
	assert.Equal(t, "pi_pub", res.AuthorizationID)

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, "settlement event not published", warned.Message)
	assert.Equal(t, events.CheckoutStarted, warned.Data["event_type"])
	assert.EqualError(t, warned.Data[logrus.ErrorKey].(error), "broker unreachable")
}
