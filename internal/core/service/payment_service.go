package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/input"
	"github.com/tasca/payment-gateway/internal/port/output"
)

// errReferenceNotStored marks failures that happen after the gateway issued a reference
var errReferenceNotStored = errors.New("gateway reference issued but not stored")

// Dependencies groups the output ports the service talks to
type Dependencies struct {
	Repository  output.PaymentRepository
	Gateway     output.PaymentGateway
	Messaging   output.PaymentMessaging
	Idempotency output.IdempotencyStore
	ListCache   output.PaymentListCache
}

// Options tune the service
type Options struct {
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

// PaymentServiceImpl implements the PaymentService input port
type PaymentServiceImpl struct {
	repo        output.PaymentRepository
	gateway     output.PaymentGateway
	msg         output.PaymentMessaging
	idempotency output.IdempotencyStore
	lists       output.PaymentListCache

	idempotencyTTL time.Duration
	now            func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(deps Dependencies, opts Options) *PaymentServiceImpl {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PaymentServiceImpl{
		repo:           deps.Repository,
		gateway:        deps.Gateway,
		msg:            deps.Messaging,
		idempotency:    deps.Idempotency,
		lists:          deps.ListCache,
		idempotencyTTL: opts.IdempotencyTTL,
		now:            opts.Now,
	}
}

var _ input.PaymentService = (*PaymentServiceImpl)(nil)

// InitiatePayment validates the request, creates the session at the gateway and stores it
func (s *PaymentServiceImpl) InitiatePayment(ctx context.Context, req input.InitiatePaymentRequest) (*input.PaymentResponse, error) {
	method, phone, err := validateInitiate(req)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.replay(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return matchReplay(existing, req, method)
		}

		claimed, err := s.idempotency.Claim(ctx, key, s.idempotencyTTL)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, core.ErrRequestInProgress
		}
	}

	session, err := s.create(ctx, req, method, phone, key)
	if err != nil {
		// a key whose gateway reference was issued stays claimed until its TTL
		if key != "" && !errors.Is(err, errReferenceNotStored) {
			if relErr := s.idempotency.Release(ctx, key); relErr != nil {
				log.Printf("Failed to release idempotency key %s: %v", key, relErr)
			}
		}
		return nil, err
	}

	if key != "" {
		if err := s.idempotency.Bind(ctx, key, session.Reference, s.idempotencyTTL); err != nil {
			log.Printf("Failed to bind idempotency key %s: %v", key, err)
		}
	}

	s.invalidate(ctx, session.ReservationID)

	if session.IsPending() {
		// the worker also resumes pending sessions on start, so a lost message is not fatal
		if err := s.msg.PublishPaymentCreated(session.Reference); err != nil {
			log.Printf("Payment %s created but failed to publish message: %v", session.Reference, err)
		}
	}

	return input.NewPaymentResponse(session), nil
}

func validateInitiate(req input.InitiatePaymentRequest) (core.PaymentMethod, string, error) {
	method, err := core.ParseMethod(req.Method)
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		return "", "", &core.ValidationError{Field: "reservation", Message: "reservation id is required"}
	}
	if req.Amount <= 0 {
		return "", "", &core.ValidationError{Field: "amount", Message: "must be a positive amount in cents"}
	}

	var phone string
	switch method {
	case core.MethodMBWay:
		if phone, err = core.ValidatePhone(req.PhoneNumber); err != nil {
			return "", "", err
		}
	case core.MethodCard:
		if !isAbsoluteURL(req.ReturnURL) {
			return "", "", &core.ValidationError{Field: "returnUrl", Message: "must be an absolute http(s) URL"}
		}
		if !isAbsoluteURL(req.CancelURL) {
			return "", "", &core.ValidationError{Field: "cancelUrl", Message: "must be an absolute http(s) URL"}
		}
	case core.MethodCash:
		if !req.Admin {
			return "", "", fmt.Errorf("%w: cash payments are recorded by staff only", core.ErrForbidden)
		}
	}
	return method, phone, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// replay finds a session already created under key
func (s *PaymentServiceImpl) replay(ctx context.Context, key string) (*core.PaymentSession, error) {
	ref, err := s.idempotency.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if ref != "" {
		session, err := s.repo.GetByReference(ctx, ref)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}

	// the cache may have evicted the key; the unique column is authoritative
	session, err := s.repo.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return session, err
}

func matchReplay(existing *core.PaymentSession, req input.InitiatePaymentRequest, method core.PaymentMethod) (*input.PaymentResponse, error) {
	if existing.Method != method || existing.Amount != req.Amount || existing.ReservationID != req.ReservationID {
		return nil, &core.ValidationError{Field: "Idempotency-Key", Message: "already used for a different payment"}
	}
	log.Printf("Replaying payment %s for idempotency key", existing.Reference)
	return input.NewPaymentResponse(existing), nil
}

func (s *PaymentServiceImpl) create(ctx context.Context, req input.InitiatePaymentRequest, method core.PaymentMethod, phone, key string) (*core.PaymentSession, error) {
	session := &core.PaymentSession{
		ID:             uuid.New(),
		ReservationID:  strings.TrimSpace(req.ReservationID),
		Method:         method,
		Amount:         req.Amount,
		Status:         core.PaymentStatusPending,
		IdempotencyKey: key,
	}

	if !method.UsesGateway() {
		session.Reference = "CASH-" + strings.ToUpper(session.ID.String()[:8])
		session.Details = core.GatewayDetails{Reference: session.Reference, Amount: session.Amount}
		if err := s.repo.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create payment: %w", err)
		}
		// staff-recorded cash is settled on the spot
		return s.transition(ctx, session, core.PaymentStatusPaid)
	}

	res, err := s.gateway.CreatePayment(ctx, output.GatewayRequest{
		Method:      method,
		Amount:      req.Amount,
		OrderID:     fmt.Sprintf("%s-%s", session.ReservationID, session.ID.String()[:8]),
		PhoneNumber: phone,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
		Description: "Reserva " + session.ReservationID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPaymentProcessing, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", core.ErrPaymentProcessing, res.Message)
	}

	session.Reference = res.Reference
	session.ExpiresAt = res.ExpiresAt
	session.Details = core.GatewayDetails{
		RedirectURL: res.RedirectURL,
		Entity:      res.Entity,
		Reference:   res.Reference,
		IBAN:        res.IBAN,
		PhoneAlias:  res.Alias,
		Amount:      res.Amount,
	}

	exists, err := s.repo.ReferenceExists(ctx, res.Reference)
	if err != nil {
		log.Printf("Gateway reference %s issued but not stored: %v", res.Reference, err)
		return nil, fmt.Errorf("%w: %s: %w", errReferenceNotStored, res.Reference, err)
	}
	if exists {
		log.Printf("Gateway returned reference %s which already belongs to another payment", res.Reference)
		return nil, fmt.Errorf("%w: %w: %s", errReferenceNotStored, core.ErrDuplicateReference, res.Reference)
	}

	if err := s.repo.Create(ctx, session); err != nil {
		log.Printf("Gateway reference %s issued but not stored: %v", res.Reference, err)
		return nil, fmt.Errorf("%w: %s: failed to create payment: %w", errReferenceNotStored, res.Reference, err)
	}
	return session, nil
}

// GetPayment retrieves a session by reference
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, reference string) (*input.PaymentResponse, error) {
	session, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return input.NewPaymentResponse(session), nil
}

// ListReservationPayments lists the sessions of a reservation, served from cache when warm
func (s *PaymentServiceImpl) ListReservationPayments(ctx context.Context, reservationID string) ([]input.PaymentResponse, error) {
	if cached, ok, err := s.lists.Get(ctx, reservationID); err == nil && ok {
		var out []input.PaymentResponse
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	} else if err != nil {
		log.Printf("Payment list cache read failed for %s: %v", reservationID, err)
	}

	sessions, err := s.repo.ListByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	out := make([]input.PaymentResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, *input.NewPaymentResponse(&sessions[i]))
	}

	if payload, err := json.Marshal(out); err == nil {
		if err := s.lists.Set(ctx, reservationID, payload); err != nil {
			log.Printf("Payment list cache write failed for %s: %v", reservationID, err)
		}
	}
	return out, nil
}

// CheckStatus returns the current status of reference, asking the gateway while pending.
// Gateway errors are returned as-is and never change the stored status.
func (s *PaymentServiceImpl) CheckStatus(ctx context.Context, reference string) (core.PaymentStatus, error) {
	session, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return "", err
	}
	if session.IsTerminal() {
		return session.Status, nil
	}

	if session.ExpiredAt(s.now()) {
		cancelled, err := s.transition(ctx, session, core.PaymentStatusCancelled)
		if err != nil {
			return "", err
		}
		return cancelled.Status, nil
	}

	if !session.Method.UsesGateway() {
		return session.Status, nil
	}

	status, err := s.gateway.PaymentStatus(ctx, reference)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrPaymentProcessing, err)
	}
	if status == core.PaymentStatusPending {
		return status, nil
	}

	updated, err := s.transition(ctx, session, status)
	if err != nil {
		return "", err
	}
	return updated.Status, nil
}

// CancelPayment cancels a pending session. Cancelling an already cancelled session is a no-op.
func (s *PaymentServiceImpl) CancelPayment(ctx context.Context, reference string) (*input.PaymentResponse, error) {
	session, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if session.Status == core.PaymentStatusCancelled {
		return input.NewPaymentResponse(session), nil
	}
	if session.IsTerminal() {
		return input.NewPaymentResponse(session), fmt.Errorf("%w: %s is %s", core.ErrTerminalState, reference, session.Status)
	}

	cancelled, err := s.transition(ctx, session, core.PaymentStatusCancelled)
	if err != nil {
		return nil, err
	}
	if cancelled.Status != core.PaymentStatusCancelled {
		return input.NewPaymentResponse(cancelled), fmt.Errorf("%w: %s is %s", core.ErrTerminalState, reference, cancelled.Status)
	}
	return input.NewPaymentResponse(cancelled), nil
}

// transition persists a terminal status and notifies dependents. When another
// writer got there first, the stored session is returned unchanged.
func (s *PaymentServiceImpl) transition(ctx context.Context, session *core.PaymentSession, target core.PaymentStatus) (*core.PaymentSession, error) {
	from := session.Status
	updated, err := s.repo.Transition(ctx, session.Reference, target)
	if errors.Is(err, core.ErrTerminalState) && updated != nil {
		return updated, nil
	}
	if err != nil {
		return nil, err
	}

	t := core.Transition{Reference: updated.Reference, From: from, To: updated.Status, At: updated.UpdatedAt}
	if err := s.msg.PublishStatusChanged(t); err != nil {
		log.Printf("Failed to publish status change for %s: %v", t.Reference, err)
	}
	s.invalidate(ctx, updated.ReservationID)
	return updated, nil
}

func (s *PaymentServiceImpl) invalidate(ctx context.Context, reservationID string) {
	if err := s.lists.Invalidate(ctx, reservationID); err != nil {
		log.Printf("Failed to invalidate payment list for %s: %v", reservationID, err)
	}
}
