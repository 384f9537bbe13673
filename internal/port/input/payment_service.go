package input

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tasca/payment-gateway/internal/core"
)

// PaymentService is an input port (primary port) for payment operations
// Primary adapters (HTTP handlers, the worker) will use this
type PaymentService interface {
	// InitiatePayment validates the request and creates a session at the gateway
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*PaymentResponse, error)

	// GetPayment retrieves a session by reference without contacting the gateway
	GetPayment(ctx context.Context, reference string) (*PaymentResponse, error)

	// ListReservationPayments lists every session created for a reservation
	ListReservationPayments(ctx context.Context, reservationID string) ([]PaymentResponse, error)

	// CheckStatus refreshes a pending session from the gateway and returns its status
	CheckStatus(ctx context.Context, reference string) (core.PaymentStatus, error)

	// CancelPayment cancels a pending session
	CancelPayment(ctx context.Context, reference string) (*PaymentResponse, error)
}

// InitiatePaymentRequest represents the request to create a payment session
type InitiatePaymentRequest struct {
	ReservationID  string
	Method         string
	Amount         int64
	PhoneNumber    string
	ReturnURL      string
	CancelURL      string
	IdempotencyKey string
	Admin          bool
}

// PaymentResponse represents the response for a payment session
type PaymentResponse struct {
	ID            uuid.UUID
	ReservationID string
	Reference     string
	Method        core.PaymentMethod
	Amount        int64
	Status        core.PaymentStatus
	ExpiresAt     *time.Time
	Details       core.GatewayDetails
	CreatedAt     time.Time
}

// NewPaymentResponse converts a session into its response form
func NewPaymentResponse(p *core.PaymentSession) *PaymentResponse {
	return &PaymentResponse{
		ID:            p.ID,
		ReservationID: p.ReservationID,
		Reference:     p.Reference,
		Method:        p.Method,
		Amount:        p.Amount,
		Status:        p.Status,
		ExpiresAt:     p.ExpiresAt,
		Details:       p.Details,
		CreatedAt:     p.CreatedAt,
	}
}
