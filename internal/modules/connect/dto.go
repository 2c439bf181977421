package connect

import "github.com/google/uuid"

type OnboardingRequest struct {
	RecipientID *uuid.UUID `json:"recipientId" example:"6f1c2a9e-3b7d-4a51-9c0e-2d8f5b4a7c11"`
	Email       string     `json:"email" binding:"required,email" example:"freelancer@example.com"`
	Country     string     `json:"country" binding:"omitempty,len=2" example:"AU"`
	ReturnURL   string     `json:"returnUrl" binding:"omitempty,url"`
	RefreshURL  string     `json:"refreshUrl" binding:"omitempty,url"`
}

type OnboardingResponse struct {
	AccountID           string  `json:"accountId" example:"acct_1Nv0FGQ9RKHgCVdK"`
	OnboardingURL       *string `json:"onboardingUrl"`
	OnboardingCompleted bool    `json:"onboardingCompleted"`
	IsExisting          bool    `json:"isExisting"`
}

type StatusResponse struct {
	AccountID           *string `json:"accountId"`
	ChargesEnabled      bool    `json:"chargesEnabled"`
	PayoutsEnabled      bool    `json:"payoutsEnabled"`
	DetailsSubmitted    bool    `json:"detailsSubmitted"`
	OnboardingCompleted bool    `json:"onboardingCompleted"`
	Payable             bool    `json:"payable"`
}
