package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tasca/payment-gateway/internal/constant/model/db"
	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/output"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository is a secondary adapter that implements PaymentRepository output port
type GormPaymentRepository struct {
	gormDB *gorm.DB
}

// NewGormPaymentRepository creates a new GORM payment repository
func NewGormPaymentRepository(gormDB *gorm.DB) output.PaymentRepository {
	return &GormPaymentRepository{gormDB: gormDB}
}

// toCore converts db.PaymentSession to core.PaymentSession
func toCore(p *db.PaymentSession) (*core.PaymentSession, error) {
	s := &core.PaymentSession{
		ID:            p.ID,
		ReservationID: p.ReservationID,
		Reference:     p.Reference,
		Method:        core.PaymentMethod(p.Method),
		Amount:        p.Amount,
		Status:        core.PaymentStatus(p.Status),
		ExpiresAt:     p.ExpiresAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.IdempotencyKey != nil {
		s.IdempotencyKey = *p.IdempotencyKey
	}
	if len(p.GatewayDetails) > 0 {
		if err := json.Unmarshal(p.GatewayDetails, &s.Details); err != nil {
			return nil, fmt.Errorf("failed to decode gateway details: %w", err)
		}
	}
	return s, nil
}

// fromCore converts core.PaymentSession to db.PaymentSession
func fromCore(p *core.PaymentSession) (*db.PaymentSession, error) {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway details: %w", err)
	}
	row := &db.PaymentSession{
		ID:             p.ID,
		ReservationID:  p.ReservationID,
		Reference:      p.Reference,
		Method:         db.PaymentMethod(p.Method),
		Amount:         p.Amount,
		Status:         db.PaymentStatus(p.Status),
		ExpiresAt:      p.ExpiresAt,
		GatewayDetails: datatypes.JSON(details),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.IdempotencyKey != "" {
		key := p.IdempotencyKey
		row.IdempotencyKey = &key
	}
	return row, nil
}

// Create creates a new session
func (r *GormPaymentRepository) Create(ctx context.Context, session *core.PaymentSession) error {
	row, err := fromCore(session)
	if err != nil {
		return err
	}
	if err := r.gormDB.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return core.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	// Update core entity with values set by GORM hooks
	session.ID = row.ID
	session.CreatedAt = row.CreatedAt
	session.UpdatedAt = row.UpdatedAt
	return nil
}

// GetByReference retrieves a session by its reference
func (r *GormPaymentRepository) GetByReference(ctx context.Context, reference string) (*core.PaymentSession, error) {
	return r.first(ctx, "reference = ?", reference)
}

// GetByIdempotencyKey retrieves the session created under key
func (r *GormPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*core.PaymentSession, error) {
	return r.first(ctx, "idempotency_key = ?", key)
}

func (r *GormPaymentRepository) first(ctx context.Context, query string, arg any) (*core.PaymentSession, error) {
	var row db.PaymentSession
	if err := r.gormDB.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return toCore(&row)
}

// ListByReservation returns the sessions of a reservation, newest first
func (r *GormPaymentRepository) ListByReservation(ctx context.Context, reservationID string) ([]core.PaymentSession, error) {
	return r.list(r.gormDB.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("created_at DESC"))
}

// ListPending returns sessions still in PENDING, oldest first
func (r *GormPaymentRepository) ListPending(ctx context.Context) ([]core.PaymentSession, error) {
	return r.list(r.gormDB.WithContext(ctx).
		Where("status = ?", db.PaymentStatusPending).
		Order("created_at ASC"))
}

func (r *GormPaymentRepository) list(query *gorm.DB) ([]core.PaymentSession, error) {
	var rows []db.PaymentSession
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	out := make([]core.PaymentSession, 0, len(rows))
	for i := range rows {
		s, err := toCore(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// Transition atomically moves a session out of PENDING.
// Uses SELECT FOR UPDATE to prevent concurrent transitions
func (r *GormPaymentRepository) Transition(ctx context.Context, reference string, target core.PaymentStatus) (*core.PaymentSession, error) {
	var result *core.PaymentSession

	err := r.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row db.PaymentSession

		// Lock the row and check status using SELECT FOR UPDATE
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference = ?", reference).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrNotFound
			}
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		session, err := toCore(&row)
		if err != nil {
			return err
		}
		if _, err := session.Transition(target, time.Now()); err != nil {
			result = session
			return err
		}

		row.Status = db.PaymentStatus(session.Status)
		row.UpdatedAt = session.UpdatedAt
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		result = session
		return nil
	})
	return result, err
}

// ReferenceExists checks if a reference already exists
func (r *GormPaymentRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	if err := r.gormDB.WithContext(ctx).Model(&db.PaymentSession{}).
		Where("reference = ?", reference).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return count > 0, nil
}
