package checkout

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketpay/internal/middleware"
	"marketpay/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/checkout", h.StartCheckout)
	rg.POST("/payments/intents", h.CreateIntent)
}

// StartCheckout godoc
// @Summary      Start hosted checkout for a booking
// @Description  Places a manual-capture hold with the platform fee withheld and returns the hosted page URL
// @Tags         Payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body CheckoutRequest true "Checkout payload"
// @Success      200 {object} CheckoutResponse
// @Failure      400 {object} map[string]interface{}
// @Failure      403 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Failure      500 {object} map[string]interface{}
// @Router       /payments/checkout [post]
func (h *Handler) StartCheckout(c *gin.Context) {
	payerID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.StartCheckout(c.Request.Context(), StartCheckoutRequest{
		BookingID:            req.BookingID,
		PayerID:              payerID,
		Amount:               req.Amount,
		PayerEmail:           req.PayerEmail,
		RecipientDisplayName: req.RecipientDisplayName,
		Description:          req.Description,
		SuccessURL:           req.SuccessURL,
		CancelURL:            req.CancelURL,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	resp := CheckoutResponse{SessionID: res.SessionID, RedirectURL: res.RedirectURL}
	if res.AuthorizationID != "" {
		resp.AuthorizationID = &res.AuthorizationID
	}
	c.JSON(http.StatusOK, resp)
}

// CreateIntent godoc
// @Summary      Create an authorization intent for an embedded card form
// @Tags         Payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body IntentRequest true "Intent payload"
// @Success      200 {object} IntentResponse
// @Failure      400 {object} map[string]interface{}
// @Failure      500 {object} map[string]interface{}
// @Router       /payments/intents [post]
func (h *Handler) CreateIntent(c *gin.Context) {
	payerID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	var req IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.CreateIntent(c.Request.Context(), CreateIntentRequest{
		BookingID:   req.BookingID,
		PayerID:     payerID,
		Amount:      req.Amount,
		PayerEmail:  req.PayerEmail,
		Description: req.Description,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, IntentResponse{
		ClientSecret:    res.ClientSecret,
		AuthorizationID: res.AuthorizationID,
		Amount:          res.Amount,
		PlatformFee:     res.PlatformFee,
		RecipientAmount: res.RecipientAmount,
		Currency:        res.Currency,
	})
}
