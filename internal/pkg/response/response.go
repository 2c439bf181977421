package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketpay/internal/domain"
)

const genericFailure = "payment could not be processed, please try again"

// Response is the envelope of every non-payment-flow body.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, Response{Error: &ErrorBody{Code: code, Message: message}})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, Response{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

// FromError maps settlement errors onto the HTTP error envelope. Precondition
// failures get specific messages; gateway and internal failures stay generic
// and are attached to the gin context for the request logger.
func FromError(c *gin.Context, err error) {
	var notCapturable *domain.NotCapturableError
	switch {
	case errors.As(err, &notCapturable):
		ErrorWithDetails(c, http.StatusBadRequest, "NOT_CAPTURABLE", notCapturable.Error(), gin.H{"status": notCapturable.Status})
	case errors.Is(err, domain.ErrValidation):
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		Error(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrAmountMismatch):
		Error(c, http.StatusBadRequest, "AMOUNT_MISMATCH", domain.ErrAmountMismatch.Error())
	case errors.Is(err, domain.ErrAlreadyPaid):
		Error(c, http.StatusBadRequest, "ALREADY_PAID", domain.ErrAlreadyPaid.Error())
	case errors.Is(err, domain.ErrRecipientNotPayable):
		Error(c, http.StatusBadRequest, "RECIPIENT_NOT_PAYABLE", domain.ErrRecipientNotPayable.Error())
	case errors.Is(err, domain.ErrBookingCancelled):
		Error(c, http.StatusBadRequest, "BOOKING_CANCELLED", domain.ErrBookingCancelled.Error())
	case errors.Is(err, domain.ErrInvalidSignature):
		Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", "invalid webhook signature")
	case errors.Is(err, domain.ErrBookingNotFound):
		Error(c, http.StatusNotFound, "BOOKING_NOT_FOUND", domain.ErrBookingNotFound.Error())
	case errors.Is(err, domain.ErrInvoiceNotFound):
		Error(c, http.StatusNotFound, "INVOICE_NOT_FOUND", domain.ErrInvoiceNotFound.Error())
	case errors.Is(err, domain.ErrPaymentNotFound):
		Error(c, http.StatusNotFound, "PAYMENT_NOT_FOUND", domain.ErrPaymentNotFound.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		Error(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", domain.ErrAccountNotFound.Error())
	case errors.Is(err, domain.ErrForbidden):
		Error(c, http.StatusForbidden, "FORBIDDEN", "access denied")
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayRejected):
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, "GATEWAY_ERROR", genericFailure)
	default:
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", genericFailure)
	}
}
