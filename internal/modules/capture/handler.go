package capture

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketpay/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterInternalRoutes mounts the server-to-server endpoints. The group
// must already carry the internal token middleware.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/capture", h.Capture)
	rg.POST("/payments/resync", h.Resync)
}

// Capture godoc
// @Summary      Capture an authorized booking payment
// @Description  Captures the hold, pays the recipient and issues the invoice. Idempotent per authorization.
// @Tags         Payments
// @Security     InternalToken
// @Accept       json
// @Produce      json
// @Param        body body CaptureRequest true "Capture payload"
// @Success      200 {object} CaptureResponse
// @Failure      400 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Failure      500 {object} map[string]interface{}
// @Router       /payments/capture [post]
func (h *Handler) Capture(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.Capture(c.Request.Context(), req.AuthorizationID, req.BookingID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCaptureResponse(res))
}

// Resync godoc
// @Summary      Reconcile an authorization with the gateway
// @Description  Re-reads the authoritative gateway status and repairs the ledger. Never captures.
// @Tags         Payments
// @Security     InternalToken
// @Accept       json
// @Produce      json
// @Param        body body ResyncRequest true "Resync payload"
// @Success      200 {object} ResyncResponse
// @Failure      400 {object} map[string]interface{}
// @Failure      500 {object} map[string]interface{}
// @Router       /payments/resync [post]
func (h *Handler) Resync(c *gin.Context) {
	var req ResyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.Resync(c.Request.Context(), req.AuthorizationID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResyncResponse{
		AuthorizationID: res.AuthorizationID,
		GatewayStatus:   res.GatewayStatus,
		State:           res.State,
		Capture:         toCaptureResponse(res.Capture),
	})
}
