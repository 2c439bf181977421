package checkout

import "github.com/google/uuid"

type CheckoutRequest struct {
	BookingID            uuid.UUID `json:"bookingId" binding:"required" example:"0b9c3f4e-8a2d-4f7b-9e1c-5a6d7e8f9a0b"`
	Amount               int64     `json:"amount" binding:"required,gt=0" example:"50000"`
	PayerEmail           string    `json:"payerEmail" binding:"required,email" example:"client@example.com"`
	RecipientDisplayName string    `json:"recipientDisplayName" binding:"required" example:"Jane Doe"`
	Description          string    `json:"description" example:"Wedding photography, 4 hours"`
	SuccessURL           string    `json:"successUrl" binding:"required,url" example:"https://app.example.com/bookings/0b9c/paid"`
	CancelURL            string    `json:"cancelUrl" binding:"required,url" example:"https://app.example.com/bookings/0b9c"`
}

type CheckoutResponse struct {
	SessionID       string  `json:"sessionId" example:"cs_test_a1b2c3"`
	RedirectURL     string  `json:"redirectUrl" example:"https://checkout.stripe.com/c/pay/cs_test_a1b2c3"`
	AuthorizationID *string `json:"authorizationId"`
}

type IntentRequest struct {
	BookingID   uuid.UUID `json:"bookingId" binding:"required"`
	Amount      int64     `json:"amount" binding:"required,gt=0" example:"50000"`
	PayerEmail  string    `json:"payerEmail" binding:"omitempty,email"`
	Description string    `json:"description"`
}

type IntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	AuthorizationID string `json:"authorizationId" example:"pi_3Nv0FGQ9RKHgCVdK"`
	Amount          int64  `json:"amount" example:"50000"`
	PlatformFee     int64  `json:"platformFee" example:"5000"`
	RecipientAmount int64  `json:"recipientAmount" example:"45000"`
	Currency        string `json:"currency" example:"aud"`
}
