package webhook

type AckResponse struct {
	Received bool   `json:"received" example:"true"`
	Type     string `json:"type" example:"payment_intent.succeeded"`
}
