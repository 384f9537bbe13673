package output

import (
	"context"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
)

// GatewayRequest is the internal shape handed to the payment provider
type GatewayRequest struct {
	Method      core.PaymentMethod
	Amount      int64
	OrderID     string
	PhoneNumber string
	ReturnURL   string
	CancelURL   string
	Description string
}

// GatewayResponse is the normalized provider envelope. Success=false never
// carries partially usable fields.
type GatewayResponse struct {
	Success     bool
	Message     string
	Reference   string
	Entity      string
	RedirectURL string
	IBAN        string
	Alias       string
	Amount      int64
	ExpiresAt   *time.Time
}

// PaymentGateway is an output port for the external payment provider
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req GatewayRequest) (*GatewayResponse, error)
	PaymentStatus(ctx context.Context, reference string) (core.PaymentStatus, error)
}
