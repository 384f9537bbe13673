package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the status of a payment session
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal checks if the status admits no further transition
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransitionTo reports whether s -> target is an edge of the session graph
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	if s != PaymentStatusPending {
		return false
	}
	return target.IsTerminal()
}

// PaymentMethod represents the supported payment methods
type PaymentMethod string

const (
	MethodCard       PaymentMethod = "card"
	MethodMBWay      PaymentMethod = "mbway"
	MethodMultibanco PaymentMethod = "multibanco"
	MethodTransfer   PaymentMethod = "transfer"
	MethodCash       PaymentMethod = "cash"
)

// ParseMethod validates a raw method name
func ParseMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodCard, MethodMBWay, MethodMultibanco, MethodTransfer, MethodCash:
		return m, nil
	}
	return "", &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported payment method %q", s)}
}

// UsesGateway is false only for cash, which is settled locally
func (m PaymentMethod) UsesGateway() bool {
	return m != MethodCash
}

// GatewayDetails is the method-specific payload shown to the customer.
// It is never inspected by the status machine.
type GatewayDetails struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	Entity      string `json:"entity,omitempty"`
	Reference   string `json:"reference,omitempty"`
	IBAN        string `json:"iban,omitempty"`
	PhoneAlias  string `json:"phoneAlias,omitempty"`
	Amount      int64  `json:"amount,omitempty"`
}

// PaymentSession represents a payment domain entity
type PaymentSession struct {
	ID             uuid.UUID
	ReservationID  string
	Reference      string
	Method         PaymentMethod
	Amount         int64
	Status         PaymentStatus
	ExpiresAt      *time.Time
	Details        GatewayDetails
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transition is the record handed to observers after a status change
type Transition struct {
	Reference string
	From      PaymentStatus
	To        PaymentStatus
	At        time.Time
}

// IsPending checks if session is in pending status
func (p *PaymentSession) IsPending() bool {
	return p.Status == PaymentStatusPending
}

// IsTerminal checks if session is in a terminal state
func (p *PaymentSession) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// ExpiredAt reports logical expiry: still pending but past ExpiresAt.
func (p *PaymentSession) ExpiredAt(now time.Time) bool {
	if !p.IsPending() || p.ExpiresAt == nil {
		return false
	}
	return !now.Before(*p.ExpiresAt)
}

// Remaining returns max(0, ExpiresAt-now), or zero when the session has no expiry
func (p *PaymentSession) Remaining(now time.Time) time.Duration {
	if p.ExpiresAt == nil {
		return 0
	}
	d := p.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Transition moves the session to target. Terminal sessions are left untouched.
func (p *PaymentSession) Transition(target PaymentStatus, at time.Time) (Transition, error) {
	if p.IsTerminal() {
		return Transition{}, fmt.Errorf("%w: %s is %s", ErrTerminalState, p.Reference, p.Status)
	}
	if !p.Status.CanTransitionTo(target) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, target)
	}
	t := Transition{Reference: p.Reference, From: p.Status, To: target, At: at}
	p.Status = target
	p.UpdatedAt = at
	return t, nil
}
