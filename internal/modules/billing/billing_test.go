package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketpay/internal/database"
	"marketpay/internal/domain"
	"marketpay/internal/middleware"
	"marketpay/internal/repository"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	bookings *repository.BookingRepository
	payments *repository.PaymentRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:billing_test_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	sx, err := database.SQLX(db)
	require.NoError(t, err)
	return &fixture{
		db:       db,
		svc:      NewService(NewRepository(sx)),
		bookings: repository.NewBookingRepository(db),
		payments: repository.NewPaymentRepository(db),
	}
}

// settled creates a booking between payer and recipient captured for gross.
func (f *fixture) settled(t *testing.T, payer, recipient uuid.UUID, gross int64, at time.Time) (*domain.Booking, *domain.Invoice) {
	t.Helper()
	ctx := context.Background()
	b := &domain.Booking{PayerID: payer, RecipientID: recipient, GrossAmount: gross, Currency: "aud", Status: domain.BookingConfirmed}
	require.NoError(t, f.bookings.Create(ctx, b))
	authID := "pi_" + b.ID.String()[:8]
	inv, _, err := repository.NewSettlementRepository(f.db).RecordCapture(ctx, repository.CaptureRecord{
		BookingID: b.ID, PayerID: payer, RecipientID: recipient, AuthorizationID: authID,
		ChargeID: "ch_" + authID, TransferID: "tr_" + authID,
		Gross: gross, PlatformFee: gross / 10, RecipientAmount: gross - gross/10, Currency: "aud",
		CapturedAt: at,
	})
	require.NoError(t, err)
	return b, inv
}

func TestService_BookingPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer, recipient := uuid.New(), uuid.New()
	b, inv := f.settled(t, payer, recipient, 50000, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	row, err := f.svc.BookingPayment(ctx, Viewer{UserID: payer}, b.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentCaptured), row.PaymentStatus)
	require.NotNil(t, row.InvoiceNumber)
	assert.Equal(t, inv.InvoiceNumber, *row.InvoiceNumber)
	require.NotNil(t, row.InvoiceID)
	assert.Equal(t, inv.ID, *row.InvoiceID)
	assert.NotNil(t, row.PaymentCapturedAt)

	_, err = f.svc.BookingPayment(ctx, Viewer{UserID: recipient}, b.ID)
	require.NoError(t, err)

	_, err = f.svc.BookingPayment(ctx, Viewer{UserID: uuid.New()}, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.BookingPayment(ctx, Viewer{UserID: uuid.New(), IsAdmin: true}, b.ID)
	assert.NoError(t, err)

	_, err = f.svc.BookingPayment(ctx, Viewer{UserID: payer}, uuid.New())
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestService_BookingPaymentBeforeCapture(t *testing.T) {
	f := newFixture(t)
	payer := uuid.New()
	b := &domain.Booking{PayerID: payer, RecipientID: uuid.New(), GrossAmount: 1000, Currency: "aud"}
	require.NoError(t, f.bookings.Create(context.Background(), b))

	row, err := f.svc.BookingPayment(context.Background(), Viewer{UserID: payer}, b.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.PaymentUnpaid), row.PaymentStatus)
	assert.Nil(t, row.InvoiceID)
	assert.Nil(t, row.InvoiceNumber)
}

func TestService_Invoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer, recipient := uuid.New(), uuid.New()
	_, inv := f.settled(t, payer, recipient, 50000, time.Now().UTC())

	row, err := f.svc.Invoice(ctx, Viewer{UserID: recipient}, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), row.Total)
	assert.Equal(t, int64(5000), row.PlatformFee)
	assert.Equal(t, int64(45000), row.RecipientPayout)
	assert.Equal(t, row.Total, row.PlatformFee+row.RecipientPayout)
	assert.Equal(t, string(domain.InvoicePaid), row.Status)

	_, err = f.svc.Invoice(ctx, Viewer{UserID: uuid.New()}, inv.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Invoice(ctx, Viewer{UserID: payer}, uuid.New())
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestService_HistoriesAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	f.settled(t, alice, bob, 50000, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	f.settled(t, alice, bob, 20000, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	_, refunded := f.settled(t, carol, alice, 10000, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	_, err := repository.NewInvoiceRepository(f.db).MarkRefunded(ctx, refunded.ID)
	require.NoError(t, err)

	paid, total, page, err := f.svc.PaymentHistory(ctx, alice, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, paid, 2)
	assert.Equal(t, defaultPageSize, page.Limit)
	for _, p := range paid {
		assert.NotNil(t, p.InvoiceNumber)
	}

	earned, total, _, err := f.svc.EarningsHistory(ctx, bob, Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, earned, 1)

	_, _, page, err = f.svc.EarningsHistory(ctx, bob, Page{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.Limit)
	assert.Zero(t, page.Offset)

	asPayer, asRecipient, err := f.svc.InvoiceStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, StatsRow{Total: 2, Paid: 2, Refunded: 0, Amount: 70000}, asPayer)
	assert.Equal(t, StatsRow{Total: 1, Paid: 0, Refunded: 1, Amount: 0}, asRecipient)

	asPayer, asRecipient, err = f.svc.InvoiceStats(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, asPayer)
	assert.Zero(t, asRecipient)
}

type fakeStream struct {
	served []uuid.UUID
}

func (s *fakeStream) ServeWS(w http.ResponseWriter, _ *http.Request, userID uuid.UUID) error {
	s.served = append(s.served, userID)
	if userID == uuid.Nil {
		return errors.New("no user")
	}
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

func newRouter(h *Handler, userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	})
	api := r.Group("/api/v1")
	h.RegisterRoutes(api)
	h.RegisterStreamRoutes(api)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Reads(t *testing.T) {
	f := newFixture(t)
	payer, recipient := uuid.New(), uuid.New()
	b, inv := f.settled(t, payer, recipient, 50000, time.Now().UTC())
	stream := &fakeStream{}
	h := NewHandler(f.svc, stream)

	w := get(newRouter(h, payer, ""), "/api/v1/bookings/"+b.ID.String()+"/payment")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var booking struct {
		Success bool                   `json:"success"`
		Data    BookingPaymentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &booking))
	assert.True(t, booking.Success)
	assert.Equal(t, "captured", booking.Data.PaymentStatus)

	w = get(newRouter(h, uuid.New(), ""), "/api/v1/invoices/"+inv.ID.String())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(newRouter(h, uuid.New(), middleware.RoleAdmin), "/api/v1/invoices/"+inv.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var invoice struct {
		Data InvoiceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invoice))
	assert.Equal(t, inv.InvoiceNumber, invoice.Data.InvoiceNumber)

	w = get(newRouter(h, payer, ""), "/api/v1/invoices/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_ID")

	w = get(newRouter(h, recipient, ""), "/api/v1/me/earnings?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data PaymentListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Data.Total)
	assert.Equal(t, 5, list.Data.Limit)
	require.Len(t, list.Data.Items, 1)
	assert.Equal(t, int64(45000), list.Data.Items[0].RecipientAmount)

	w = get(newRouter(h, payer, ""), "/api/v1/me/payments?limit=500")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "max=100")

	w = get(newRouter(h, payer, ""), "/api/v1/me/invoices/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Data InvoiceStatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(50000), stats.Data.AsPayer.TotalSpent)
	assert.Zero(t, stats.Data.AsRecipient.Total)

	w = get(newRouter(h, payer, ""), "/api/v1/ws/payments")
	assert.Equal(t, http.StatusSwitchingProtocols, w.Code)
	assert.Equal(t, []uuid.UUID{payer}, stream.served)
}

func TestHandler_RequiresUser(t *testing.T) {
	f := newFixture(t)
	w := get(newRouter(NewHandler(f.svc, &fakeStream{}), uuid.Nil, ""), "/api/v1/me/payments")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
