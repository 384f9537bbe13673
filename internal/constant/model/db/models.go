package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus represents the status of a payment session
type PaymentStatus string

// PaymentStatusPending is the only status the store filters on
const PaymentStatusPending PaymentStatus = "pending"

// PaymentMethod represents the stored payment method
type PaymentMethod string

// PaymentSession represents a payment session in the database
type PaymentSession struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ReservationID  string         `gorm:"type:varchar(64);not null;index" json:"reservation_id"`
	Reference      string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"reference"`
	Method         PaymentMethod  `gorm:"type:varchar(20);not null" json:"method"`
	Amount         int64          `gorm:"not null" json:"amount"`
	Status         PaymentStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
	GatewayDetails datatypes.JSON `json:"gateway_details"`
	IdempotencyKey *string        `gorm:"type:varchar(128);uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (p *PaymentSession) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate is a GORM hook that runs before updating a record
func (p *PaymentSession) BeforeUpdate(tx *gorm.DB) error {
	p.UpdatedAt = time.Now()
	return nil
}
