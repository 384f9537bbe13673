package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tasca/payment-gateway/internal/core"
	"github.com/tasca/payment-gateway/internal/core/monitor"
	"github.com/tasca/payment-gateway/internal/port/input"
	"github.com/tasca/payment-gateway/internal/port/output"
)

// PaymentProcessor runs one monitor per pending session on the worker
type PaymentProcessor struct {
	ctx     context.Context
	service input.PaymentService
	repo    output.PaymentRepository
	opts    monitor.Options

	mu     sync.Mutex
	active map[string]*monitor.Monitor
	wg     sync.WaitGroup
}

// NewPaymentProcessor creates a new payment processor. Monitors stop when ctx ends.
func NewPaymentProcessor(ctx context.Context, service input.PaymentService, repo output.PaymentRepository, opts monitor.Options) *PaymentProcessor {
	return &PaymentProcessor{
		ctx:     ctx,
		service: service,
		repo:    repo,
		opts:    opts,
		active:  make(map[string]*monitor.Monitor),
	}
}

// ResumePending starts monitors for every session left pending, e.g. after a restart
func (p *PaymentProcessor) ResumePending(ctx context.Context) (int, error) {
	sessions, err := p.repo.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending payments: %w", err)
	}
	started := 0
	for _, s := range sessions {
		if p.start(s) {
			started++
		}
	}
	return started, nil
}

// ProcessPayment starts monitoring reference.
// It is idempotent: a reference already under watch is left alone.
func (p *PaymentProcessor) ProcessPayment(ctx context.Context, reference string) error {
	res, err := p.service.GetPayment(ctx, reference)
	if err != nil {
		return fmt.Errorf("failed to process payment: %w", err)
	}
	if res.Status.IsTerminal() {
		return fmt.Errorf("failed to process payment: %w: %s is %s", core.ErrTerminalState, reference, res.Status)
	}

	p.start(core.PaymentSession{
		ID:            res.ID,
		ReservationID: res.ReservationID,
		Reference:     res.Reference,
		Method:        res.Method,
		Amount:        res.Amount,
		Status:        res.Status,
		ExpiresAt:     res.ExpiresAt,
		Details:       res.Details,
	})
	return nil
}

// Active returns how many sessions are being monitored
func (p *PaymentProcessor) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Wait blocks until every monitor has stopped
func (p *PaymentProcessor) Wait() {
	p.wg.Wait()
}

func (p *PaymentProcessor) start(session core.PaymentSession) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[session.Reference]; ok {
		return false
	}

	m := monitor.New(session, monitor.StatusCheckerFunc(p.service.CheckStatus), monitor.CancellerFunc(p.cancel), p.opts)
	p.active[session.Reference] = m

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		final := m.Run(p.ctx)
		log.Printf("[Worker] %s: monitor stopped with status %s", session.Reference, final)

		p.mu.Lock()
		delete(p.active, session.Reference)
		p.mu.Unlock()
	}()
	return true
}

func (p *PaymentProcessor) cancel(ctx context.Context, reference string) (core.PaymentStatus, error) {
	res, err := p.service.CancelPayment(ctx, reference)
	if errors.Is(err, core.ErrTerminalState) && res != nil {
		return res.Status, nil
	}
	if err != nil {
		return "", err
	}
	return res.Status, nil
}
