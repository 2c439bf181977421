package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketpay/internal/domain"
	"marketpay/internal/pkg/response"
)

// maxBodyBytes caps a webhook delivery; gateway events are far smaller.
const maxBodyBytes = 65536

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/webhook", h.Receive)
}

// Receive godoc
// @Summary      Gateway webhook
// @Description  Verifies the Stripe-Signature header and applies the event. Processing failures are acknowledged and kept for replay.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Gateway signature"
// @Success      200 {object} AckResponse
// @Failure      400 {object} map[string]interface{}
// @Router       /payments/webhook [post]
func (h *Handler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_PAYLOAD", "could not read request body")
		return
	}

	ack, err := h.service.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			response.Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", domain.ErrInvalidSignature.Error())
			return
		}
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, AckResponse{Received: ack.Received, Type: ack.Type})
}
