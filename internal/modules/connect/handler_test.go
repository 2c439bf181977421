package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketpay/internal/domain"
	"marketpay/internal/gateway"
	"marketpay/internal/middleware"
)

func newRouter(h *Handler, userID uuid.UUID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	})
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_OnboardReturnsLink(t *testing.T) {
	svc, gw, _, _ := newTestService(t)
	userID := uuid.New()
	gw.On("CreateAccount", mock.Anything, mock.Anything).Return(&gateway.Account{ID: "acct_h"}, nil)
	gw.On("CreateOnboardingLink", mock.Anything, "acct_h", mock.Anything, mock.Anything).Return("https://link/h", nil)

	w := doJSON(newRouter(NewHandler(svc), userID, "freelancer"), http.MethodPost, "/api/v1/payments/connect/onboarding",
		gin.H{"email": "f@example.com", "country": "AU"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp OnboardingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "acct_h", resp.AccountID)
	require.NotNil(t, resp.OnboardingURL)
	assert.Equal(t, "https://link/h", *resp.OnboardingURL)
}

func TestHandler_OnboardOtherRecipientForbidden(t *testing.T) {
	svc, gw, _, _ := newTestService(t)
	w := doJSON(newRouter(NewHandler(svc), uuid.New(), "freelancer"), http.MethodPost, "/api/v1/payments/connect/onboarding",
		gin.H{"recipientId": uuid.New(), "email": "f@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	gw.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
}

func TestHandler_OnboardRequiresEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	w := doJSON(newRouter(NewHandler(svc), uuid.New(), "freelancer"), http.MethodPost, "/api/v1/payments/connect/onboarding", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestHandler_StatusWithoutAccount(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	w := doJSON(newRouter(NewHandler(svc), uuid.New(), "freelancer"), http.MethodGet, "/api/v1/payments/connect/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.AccountID)
	assert.False(t, resp.Payable)
}

func TestHandler_StatusCompleted(t *testing.T) {
	svc, _, accounts, _ := newTestService(t)
	userID := uuid.New()
	acc := &domain.ConnectedAccount{RecipientID: userID, ExternalAccountID: "acct_s"}
	acc.SetCapabilities(true, true, true)
	require.NoError(t, accounts.Create(context.Background(), acc))

	w := doJSON(newRouter(NewHandler(svc), userID, "freelancer"), http.MethodGet, "/api/v1/payments/connect/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.AccountID)
	assert.Equal(t, "acct_s", *resp.AccountID)
	assert.True(t, resp.OnboardingCompleted)
	assert.True(t, resp.Payable)
}
