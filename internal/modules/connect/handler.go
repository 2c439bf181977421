package connect

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketpay/internal/domain"
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
	rg.POST("/payments/connect/onboarding", h.Onboard)
	rg.GET("/payments/connect/status", h.Status)
}

// Onboard godoc
// @Summary      Start or resume payout onboarding
// @Description  Creates the caller's connected account on first use and returns a one-time onboarding link
// @Tags         Connect
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body OnboardingRequest true "Onboarding payload"
// @Success      200 {object} OnboardingResponse
// @Failure      400 {object} map[string]interface{}
// @Failure      403 {object} map[string]interface{}
// @Failure      500 {object} map[string]interface{}
// @Router       /payments/connect/onboarding [post]
func (h *Handler) Onboard(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	recipientID := userID
	if req.RecipientID != nil && *req.RecipientID != userID {
		if !middleware.IsAdmin(c) {
			response.FromError(c, domain.ErrForbidden)
			return
		}
		recipientID = *req.RecipientID
	}

	res, err := h.service.EnsureAccount(c.Request.Context(), EnsureAccountRequest{
		RecipientID: recipientID,
		Email:       req.Email,
		Country:     req.Country,
		ReturnURL:   req.ReturnURL,
		RefreshURL:  req.RefreshURL,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	resp := OnboardingResponse{
		AccountID:           res.AccountID,
		OnboardingCompleted: res.OnboardingCompleted,
		IsExisting:          res.IsExisting,
	}
	if res.OnboardingURL != "" {
		resp.OnboardingURL = &res.OnboardingURL
	}
	c.JSON(http.StatusOK, resp)
}

// Status godoc
// @Summary      Payout account status
// @Tags         Connect
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} StatusResponse
// @Router       /payments/connect/status [get]
func (h *Handler) Status(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	acc, err := h.service.Status(c.Request.Context(), userID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		c.JSON(http.StatusOK, StatusResponse{})
		return
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		AccountID:           &acc.ExternalAccountID,
		ChargesEnabled:      acc.ChargesEnabled,
		PayoutsEnabled:      acc.PayoutsEnabled,
		DetailsSubmitted:    acc.DetailsSubmitted,
		OnboardingCompleted: acc.OnboardingCompleted,
		Payable:             acc.Payable(),
	})
}
