package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
)

// DefaultTick is the countdown resolution
const DefaultTick = time.Second

// Canceller requests cancellation of an expired reference and returns the
// status the backend confirmed. That is normally cancelled, but a session
// settled in the meantime reports its real terminal status.
type Canceller interface {
	Cancel(ctx context.Context, reference string) (core.PaymentStatus, error)
}

// CancellerFunc adapts a function to Canceller
type CancellerFunc func(ctx context.Context, reference string) (core.PaymentStatus, error)

func (f CancellerFunc) Cancel(ctx context.Context, reference string) (core.PaymentStatus, error) {
	return f(ctx, reference)
}

// ExpiryTimer counts down to expiresAt and cancels the reference when it runs out.
// Cancellation is issued from the timer goroutine, so attempts never overlap;
// a failed attempt is retried on the next tick.
type ExpiryTimer struct {
	reference string
	expiresAt time.Time
	tick      time.Duration
	now       func() time.Time
	canceller Canceller

	isPending   func() bool
	onTick      func(remaining time.Duration)
	onCancelled func(confirmed core.PaymentStatus)
	onError     func(error)
}

// Remaining returns max(0, expiresAt-now)
func (t *ExpiryTimer) Remaining() time.Duration {
	d := t.expiresAt.Sub(t.now())
	if d < 0 {
		return 0
	}
	return d
}

// Run evaluates immediately and then on every tick until the session leaves
// pending, cancellation is confirmed, or ctx ends.
func (t *ExpiryTimer) Run(ctx context.Context) {
	if t.step(ctx) {
		return
	}

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.step(ctx) {
				return
			}
		}
	}
}

func (t *ExpiryTimer) step(ctx context.Context) bool {
	if !t.isPending() {
		return true
	}

	remaining := t.Remaining()
	t.onTick(remaining)
	if remaining > 0 {
		return false
	}

	confirmed, err := t.canceller.Cancel(ctx, t.reference)
	if err == nil && !confirmed.IsTerminal() {
		err = fmt.Errorf("cancel %s: backend still reports %q", t.reference, confirmed)
	}
	if err != nil {
		if ctx.Err() == nil {
			t.onError(err)
		}
		return false
	}
	t.onCancelled(confirmed)
	return true
}
