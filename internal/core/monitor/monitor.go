package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tasca/payment-gateway/internal/core"
)

// Observer is notified once for every status transition
type Observer func(core.Transition)

// Options tune a Monitor. Zero values fall back to the defaults.
type Options struct {
	PollInterval time.Duration
	Tick         time.Duration
	Now          func() time.Time

	// OnError receives soft failures (transport, non-JSON bodies, failed cancels)
	OnError func(error)
	// OnTick receives the countdown of sessions with an expiration time
	OnTick func(remaining time.Duration)
}

// Monitor owns one payment session and is the only writer of its status.
type Monitor struct {
	mu        sync.Mutex
	session   core.PaymentSession
	observers []Observer
	lastErr   error

	poller *Poller
	timer  *ExpiryTimer
	opts   Options

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a monitor for a copy of session
func New(session core.PaymentSession, checker StatusChecker, canceller Canceller, opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.OnTick == nil {
		opts.OnTick = func(time.Duration) {}
	}

	m := &Monitor{
		session: session,
		opts:    opts,
		done:    make(chan struct{}),
	}

	m.poller = NewPoller(checker, session.Reference, opts.PollInterval, m.onStatus, m.recordError)

	if session.ExpiresAt != nil && canceller != nil {
		m.timer = &ExpiryTimer{
			reference:   session.Reference,
			expiresAt:   *session.ExpiresAt,
			tick:        opts.Tick,
			now:         opts.Now,
			canceller:   canceller,
			isPending:   func() bool { return m.Status() == core.PaymentStatusPending },
			onTick:      opts.OnTick,
			onCancelled: m.apply,
			onError:     m.recordError,
		}
	}

	if session.IsTerminal() {
		m.closeDone()
	}
	return m
}

// Subscribe registers an observer. Must be called before Run.
func (m *Monitor) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Status returns the current status
func (m *Monitor) Status() core.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Status
}

// LastError returns the most recent soft failure, cleared by the next successful check
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Done is closed once the session reaches a terminal state
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Expired reports whether the session is past its expiration while still pending
func (m *Monitor) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.ExpiredAt(m.opts.Now())
}

// Refresh triggers an out-of-band check, skipped if one is already in flight.
func (m *Monitor) Refresh(ctx context.Context) bool {
	if m.Status().IsTerminal() {
		return false
	}
	_, fired := m.poller.Poll(ctx)
	return fired
}

// Run polls and counts down until the session is terminal or ctx ends, and
// returns the last known status. Ending ctx only stops observation.
func (m *Monitor) Run(ctx context.Context) core.PaymentStatus {
	select {
	case <-m.done:
		return m.Status()
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.poller.Run(ctx)
	}()
	if m.timer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.timer.Run(ctx)
		}()
	}

	select {
	case <-m.done:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	return m.Status()
}

func (m *Monitor) onStatus(status core.PaymentStatus) bool {
	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()

	if status == core.PaymentStatusPending {
		return false
	}
	m.apply(status)
	return true
}

// apply performs a transition; answers arriving after a terminal state are dropped.
func (m *Monitor) apply(target core.PaymentStatus) {
	m.mu.Lock()
	if m.session.IsTerminal() {
		m.mu.Unlock()
		log.Printf("[Monitor] %s: ignoring %s, already %s", m.session.Reference, target, m.session.Status)
		return
	}
	t, err := m.session.Transition(target, m.opts.Now())
	if err != nil {
		m.mu.Unlock()
		log.Printf("[Monitor] %s: %v", m.session.Reference, err)
		return
	}
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	log.Printf("[Monitor] %s: %s -> %s", t.Reference, t.From, t.To)
	for _, o := range observers {
		o(t)
	}
	m.closeDone()
}

func (m *Monitor) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	ref := m.session.Reference
	m.mu.Unlock()

	log.Printf("[Monitor] %s: %v", ref, err)
	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}

func (m *Monitor) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}
