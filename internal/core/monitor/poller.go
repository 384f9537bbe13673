// Package monitor drives a pending payment session to a terminal state by
// polling its status and cancelling it once its reference expires.
package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
)

// DefaultPollInterval is the status check period of the generic monitor
const DefaultPollInterval = 10 * time.Second

// StatusChecker answers "what is the status of reference now?"
type StatusChecker interface {
	CheckStatus(ctx context.Context, reference string) (core.PaymentStatus, error)
}

// StatusCheckerFunc adapts a function to StatusChecker
type StatusCheckerFunc func(ctx context.Context, reference string) (core.PaymentStatus, error)

func (f StatusCheckerFunc) CheckStatus(ctx context.Context, reference string) (core.PaymentStatus, error) {
	return f(ctx, reference)
}

// Poller repeatedly checks one reference. At most one check is in flight at a time;
// a check requested while another is unresolved is skipped.
type Poller struct {
	checker   StatusChecker
	reference string
	interval  time.Duration
	inFlight  atomic.Bool

	// onStatus receives every successful answer and returns true to stop polling
	onStatus func(core.PaymentStatus) bool
	onError  func(error)
}

// NewPoller creates a poller for reference
func NewPoller(checker StatusChecker, reference string, interval time.Duration, onStatus func(core.PaymentStatus) bool, onError func(error)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Poller{
		checker:   checker,
		reference: reference,
		interval:  interval,
		onStatus:  onStatus,
		onError:   onError,
	}
}

// Run checks immediately, then every interval, until onStatus asks to stop or ctx ends.
func (p *Poller) Run(ctx context.Context) {
	if stop, _ := p.Poll(ctx); stop {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop, _ := p.Poll(ctx); stop {
				return
			}
		}
	}
}

// Poll performs one guarded check. fired is false when a check was already in flight.
// Errors are reported to onError and never stop the poller.
func (p *Poller) Poll(ctx context.Context) (stop bool, fired bool) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return false, false
	}
	defer p.inFlight.Store(false)

	status, err := p.checker.CheckStatus(ctx, p.reference)
	if err != nil {
		if ctx.Err() == nil {
			p.onError(err)
		}
		return false, true
	}
	return p.onStatus(status), true
}
