package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/port/output"
)

type fakeRepository struct {
	mu       sync.Mutex
	sessions map[string]core.PaymentSession
	seq      int

	// createErr fails the next Create once
	createErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{sessions: make(map[string]core.PaymentSession)}
}

func (r *fakeRepository) Create(ctx context.Context, s *core.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr; err != nil {
		r.createErr = nil
		return err
	}
	if _, ok := r.sessions[s.Reference]; ok {
		return core.ErrDuplicateReference
	}
	r.seq++
	s.CreatedAt = time.Date(2026, 1, 1, 0, 0, r.seq, 0, time.UTC)
	s.UpdatedAt = s.CreatedAt
	r.sessions[s.Reference] = *s
	return nil
}

func (r *fakeRepository) GetByReference(ctx context.Context, reference string) (*core.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[reference]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &s, nil
}

func (r *fakeRepository) GetByIdempotencyKey(ctx context.Context, key string) (*core.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if key != "" && s.IdempotencyKey == key {
			s := s
			return &s, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *fakeRepository) ListByReservation(ctx context.Context, reservationID string) ([]core.PaymentSession, error) {
	return r.filter(func(s core.PaymentSession) bool { return s.ReservationID == reservationID }), nil
}

func (r *fakeRepository) ListPending(ctx context.Context) ([]core.PaymentSession, error) {
	return r.filter(func(s core.PaymentSession) bool { return s.IsPending() }), nil
}

func (r *fakeRepository) filter(keep func(core.PaymentSession) bool) []core.PaymentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.PaymentSession
	for _, s := range r.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *fakeRepository) Transition(ctx context.Context, reference string, target core.PaymentStatus) (*core.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[reference]
	if !ok {
		return nil, core.ErrNotFound
	}
	if _, err := s.Transition(target, time.Now()); err != nil {
		return &s, err
	}
	r.sessions[reference] = s
	return &s, nil
}

func (r *fakeRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[reference]
	return ok, nil
}

func (r *fakeRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

type fakeGateway struct {
	mu        sync.Mutex
	requests  []output.GatewayRequest
	response  *output.GatewayResponse
	createErr error
	status    core.PaymentStatus
	statusErr error
	checks    int
	nextRef   int
}

func (g *fakeGateway) CreatePayment(ctx context.Context, req output.GatewayRequest) (*output.GatewayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.response != nil {
		res := *g.response
		return &res, nil
	}
	g.nextRef++
	return &output.GatewayResponse{
		Success:   true,
		Reference: "REF-" + string(rune('A'+g.nextRef-1)),
		Entity:    "11249",
		Alias:     req.PhoneNumber,
		Amount:    req.Amount,
	}, nil
}

func (g *fakeGateway) PaymentStatus(ctx context.Context, reference string) (core.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.statusErr != nil {
		return "", g.statusErr
	}
	if g.status == "" {
		return core.PaymentStatusPending, nil
	}
	return g.status, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *fakeGateway) setStatus(s core.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = s
}

type fakeMessaging struct {
	mu          sync.Mutex
	created     []string
	transitions []core.Transition
	err         error
}

func (m *fakeMessaging) PublishPaymentCreated(reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, reference)
	return m.err
}

func (m *fakeMessaging) PublishStatusChanged(t core.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return m.err
}

func (m *fakeMessaging) Close() error { return nil }

func (m *fakeMessaging) statusEvents() []core.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Transition(nil), m.transitions...)
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]string)}
}

func (f *fakeIdempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = ""
	return true, nil
}

func (f *fakeIdempotency) Bind(ctx context.Context, key, reference string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = reference
	return nil
}

func (f *fakeIdempotency) Lookup(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], nil
}

func (f *fakeIdempotency) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

type fakeListCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
	readErr     error
}

func newFakeListCache() *fakeListCache {
	return &fakeListCache{entries: make(map[string][]byte)}
}

func (c *fakeListCache) Get(ctx context.Context, reservationID string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, false, c.readErr
	}
	b, ok := c.entries[reservationID]
	return b, ok, nil
}

func (c *fakeListCache) Set(ctx context.Context, reservationID string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[reservationID] = payload
	return nil
}

func (c *fakeListCache) Invalidate(ctx context.Context, reservationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, reservationID)
	c.invalidated = append(c.invalidated, reservationID)
	return nil
}

var errGatewayDown = errors.New("dial tcp: connection refused")

type fixture struct {
	svc     *PaymentServiceImpl
	repo    *fakeRepository
	gateway *fakeGateway
	msg     *fakeMessaging
	idem    *fakeIdempotency
	lists   *fakeListCache
	now     time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newFakeRepository(),
		gateway: &fakeGateway{},
		msg:     &fakeMessaging{},
		idem:    newFakeIdempotency(),
		lists:   newFakeListCache(),
		now:     time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC),
	}
	f.svc = NewPaymentService(Dependencies{
		Repository:  f.repo,
		Gateway:     f.gateway,
		Messaging:   f.msg,
		Idempotency: f.idem,
		ListCache:   f.lists,
	}, Options{Now: func() time.Time { return f.now }})
	return f
}
