package output

import (
	"context"

	"github.com/tasca/payment-gateway/internal/core"
)

// PaymentRepository is an output port (secondary port) for payment session storage
// Secondary adapters (database implementations) will implement this
type PaymentRepository interface {
	// Create creates a new session
	Create(ctx context.Context, session *core.PaymentSession) error

	// GetByReference retrieves a session by its gateway reference
	GetByReference(ctx context.Context, reference string) (*core.PaymentSession, error)

	// GetByIdempotencyKey retrieves the session created under key, or core.ErrNotFound
	GetByIdempotencyKey(ctx context.Context, key string) (*core.PaymentSession, error)

	// ListByReservation returns sessions for a reservation, newest first
	ListByReservation(ctx context.Context, reservationID string) ([]core.PaymentSession, error)

	// ListPending returns every session still awaiting a terminal status
	ListPending(ctx context.Context) ([]core.PaymentSession, error)

	// Transition atomically moves a pending session to a terminal status.
	// Uses SELECT FOR UPDATE; returns core.ErrTerminalState if the row is no longer pending.
	Transition(ctx context.Context, reference string, target core.PaymentStatus) (*core.PaymentSession, error)

	// ReferenceExists checks if a reference already exists
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}
