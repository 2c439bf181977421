package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpay/internal/domain"
)

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterPublicRoutes(r.Group("/api/v1"))
	return r
}

func postWebhook(r http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_AcknowledgesVerifiedEvent(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, "pi_http")
	payload := eventPayload(t, "evt_http", TypeAuthorizationSucceeded, "", intentObject(b, "pi_http"))

	w := postWebhook(newRouter(NewHandler(f.svc)), payload, sign(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.Equal(t, TypeAuthorizationSucceeded, resp.Type)
	assert.Equal(t, domain.PaymentSucceeded, f.bookingStatus(t, b.ID))
}

func TestHandler_UnknownEventStillOK(t *testing.T) {
	f := newFixture(t)
	payload := eventPayload(t, "evt_other", "invoice.created", "", map[string]any{"id": "in_1", "object": "invoice"})

	w := postWebhook(newRouter(NewHandler(f.svc)), payload, sign(payload))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"type":"invoice.created"}`, w.Body.String())
}

func TestHandler_RejectsMissingSignature(t *testing.T) {
	f := newFixture(t)
	payload := eventPayload(t, "evt_nosig", TypeAuthorizationSucceeded, "", map[string]any{"id": "pi_1"})

	w := postWebhook(newRouter(NewHandler(f.svc)), payload, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SIGNATURE")
}

func TestHandler_RejectsTamperedBody(t *testing.T) {
	f := newFixture(t)
	payload := eventPayload(t, "evt_tamper", TypeAuthorizationSucceeded, "", map[string]any{"id": "pi_1"})
	signature := sign(payload)
	tampered := bytes.Replace(payload, []byte("pi_1"), []byte("pi_2"), 1)

	w := postWebhook(newRouter(NewHandler(f.svc)), tampered, signature)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
