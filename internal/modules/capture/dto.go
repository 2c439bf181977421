package capture

import "github.com/google/uuid"

type CaptureRequest struct {
	AuthorizationID string    `json:"authorizationId" binding:"required" example:"pi_3Nv0FGQ9RKHgCVdK"`
	BookingID       uuid.UUID `json:"bookingId" binding:"required" example:"0b9c3f4e-8a2d-4f7b-9e1c-5a6d7e8f9a0b"`
}

type CaptureResponse struct {
	AuthorizationID  string            `json:"authorizationId" example:"pi_3Nv0FGQ9RKHgCVdK"`
	ChargeID         string            `json:"chargeId" example:"ch_3Nv0FGQ9RKHgCVdK"`
	TransferID       *string           `json:"transferId"`
	InvoiceID        uuid.UUID         `json:"invoiceId"`
	InvoiceNumber    string            `json:"invoiceNumber" example:"INV-202603-0001"`
	GrossAmount      int64             `json:"grossAmount" example:"50000"`
	PlatformFee      int64             `json:"platformFee" example:"5000"`
	RecipientAmount  int64             `json:"recipientAmount" example:"45000"`
	Currency         string            `json:"currency" example:"aud"`
	PayoutPending    bool              `json:"payoutPending"`
	SecondaryFailure *SecondaryFailure `json:"secondaryFailure,omitempty"`
}

type ResyncRequest struct {
	AuthorizationID string `json:"authorizationId" binding:"required"`
}

type ResyncResponse struct {
	AuthorizationID string           `json:"authorizationId"`
	GatewayStatus   string           `json:"gatewayStatus" example:"succeeded"`
	State           string           `json:"state" example:"captured"`
	Capture         *CaptureResponse `json:"capture,omitempty"`
}

func toCaptureResponse(r *CaptureResult) *CaptureResponse {
	if r == nil {
		return nil
	}
	resp := &CaptureResponse{
		AuthorizationID:  r.AuthorizationID,
		ChargeID:         r.ChargeID,
		InvoiceID:        r.InvoiceID,
		InvoiceNumber:    r.InvoiceNumber,
		GrossAmount:      r.GrossAmount,
		PlatformFee:      r.PlatformFee,
		RecipientAmount:  r.RecipientAmount,
		Currency:         r.Currency,
		PayoutPending:    r.PayoutPending,
		SecondaryFailure: r.SecondaryFailure,
	}
	if r.TransferID != "" {
		id := r.TransferID
		resp.TransferID = &id
	}
	return resp
}
