package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketpay/internal/middleware"
	"marketpay/internal/pkg/response"
	"marketpay/internal/pkg/validator"
)

// statusStream upgrades a request into a live settlement event feed.
type statusStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error
}

type Handler struct {
	service *Service
	stream  statusStream
}

func NewHandler(service *Service, stream statusStream) *Handler {
	return &Handler{service: service, stream: stream}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bookings/:id/payment", h.GetBookingPayment)
	rg.GET("/invoices/:id", h.GetInvoice)

	me := rg.Group("/me")
	{
		me.GET("/payments", h.ListPayments)
		me.GET("/earnings", h.ListEarnings)
		me.GET("/invoices/stats", h.GetInvoiceStats)
	}
}

// RegisterStreamRoutes mounts the websocket feed. The group must accept the
// token as a query parameter.
func (h *Handler) RegisterStreamRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/payments", h.Stream)
}

// GetBookingPayment godoc
// @Summary      Booking payment status
// @Tags         Billing
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Booking ID"
// @Success      200 {object} response.Response{data=BookingPaymentResponse}
// @Failure      403 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Router       /bookings/{id}/payment [get]
func (h *Handler) GetBookingPayment(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	row, err := h.service.BookingPayment(c.Request.Context(), viewer, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toBookingPaymentResponse(row))
}

// GetInvoice godoc
// @Summary      Invoice by id
// @Tags         Billing
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Success      200 {object} response.Response{data=InvoiceResponse}
// @Failure      403 {object} map[string]interface{}
// @Failure      404 {object} map[string]interface{}
// @Router       /invoices/{id} [get]
func (h *Handler) GetInvoice(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	row, err := h.service.Invoice(c.Request.Context(), viewer, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toInvoiceResponse(row))
}

// ListPayments godoc
// @Summary      Payment history of the caller as payer
// @Tags         Billing
// @Security     BearerAuth
// @Produce      json
// @Param        limit query int false "Page size (max 100)"
// @Param        offset query int false "Offset"
// @Success      200 {object} response.Response{data=PaymentListResponse}
// @Router       /me/payments [get]
func (h *Handler) ListPayments(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}
	page, ok := pageFrom(c)
	if !ok {
		return
	}

	rows, total, page, err := h.service.PaymentHistory(c.Request.Context(), userID, page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toPaymentList(rows, total, page))
}

// ListEarnings godoc
// @Summary      Earnings history of the caller as recipient
// @Tags         Billing
// @Security     BearerAuth
// @Produce      json
// @Param        limit query int false "Page size (max 100)"
// @Param        offset query int false "Offset"
// @Success      200 {object} response.Response{data=PaymentListResponse}
// @Router       /me/earnings [get]
func (h *Handler) ListEarnings(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}
	page, ok := pageFrom(c)
	if !ok {
		return
	}

	rows, total, page, err := h.service.EarningsHistory(c.Request.Context(), userID, page)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toPaymentList(rows, total, page))
}

// GetInvoiceStats godoc
// @Summary      Invoice totals for the caller
// @Tags         Billing
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} response.Response{data=InvoiceStatsResponse}
// @Router       /me/invoices/stats [get]
func (h *Handler) GetInvoiceStats(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}

	payer, recipient, err := h.service.InvoiceStats(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, InvoiceStatsResponse{
		AsPayer:     PayerStats{Total: payer.Total, Paid: payer.Paid, Refunded: payer.Refunded, TotalSpent: payer.Amount},
		AsRecipient: RecipientStats{Total: recipient.Total, Paid: recipient.Paid, Refunded: recipient.Refunded, TotalEarned: recipient.Amount},
	})
}

// Stream godoc
// @Summary      Live settlement events for the caller
// @Description  Websocket feed of payment status changes on the caller's bookings
// @Tags         Billing
// @Security     BearerAuth
// @Param        access_token query string false "Bearer token when headers cannot be set"
// @Router       /ws/payments [get]
func (h *Handler) Stream(c *gin.Context) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return
	}
	if err := h.stream.ServeWS(c.Writer, c.Request, userID); err != nil {
		// the upgrader has already written the failure response
		_ = c.Error(err)
	}
}

func viewerFrom(c *gin.Context) (Viewer, bool) {
	userID, ok := middleware.RequireUser(c)
	if !ok {
		return Viewer{}, false
	}
	return Viewer{UserID: userID, IsAdmin: middleware.IsAdmin(c)}, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pageFrom(c *gin.Context) (Page, bool) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return Page{}, false
	}
	if errs := validator.Validate(&q); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid pagination", errs)
		return Page{}, false
	}
	return Page{Limit: q.Limit, Offset: q.Offset}, true
}
