package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"chanlun/internal/stream"
)

// ErrCircuitOpen is returned while a guarded sink is refusing publishes.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState is the state of a guarded sink's breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// GuardConfig controls retries and the circuit breaker of a Guarded sink.
type GuardConfig struct {
	// MaxAttempts per envelope, including the first.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// FailureThreshold consecutive failed envelopes open the circuit.
	FailureThreshold int
	// OpenTimeout is how long the circuit stays open before a trial publish.
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns three attempts with 100ms doubling backoff and a
// breaker that opens after five failed envelopes for thirty seconds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxAttempts:      3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// GuardStats counts guarded publishes.
type GuardStats struct {
	State     CircuitState
	Published int64
	Retries   int64
	Failed    int64
	Rejected  int64
}

// Guarded retries a sink's publishes with exponential backoff and stops
// calling it while it keeps failing.
type Guarded struct {
	inner Sink
	cfg   GuardConfig
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	stats    GuardStats
}

// NewGuarded wraps inner.
func NewGuarded(inner Sink, cfg GuardConfig) *Guarded {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Guarded{inner: inner, cfg: cfg, now: time.Now, sleep: sleepCtx, state: CircuitClosed}
}

// Name implements Sink.
func (g *Guarded) Name() string { return g.inner.Name() }

// Publish implements Sink.
func (g *Guarded) Publish(ctx context.Context, env stream.Envelope) error {
	if !g.allow() {
		return ErrCircuitOpen
	}

	delay := g.cfg.InitialDelay
	var err error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			g.mu.Lock()
			g.stats.Retries++
			g.mu.Unlock()
			if serr := g.sleep(ctx, delay); serr != nil {
				err = serr
				break
			}
			delay = backoff(delay, g.cfg.MaxDelay)
		}
		if err = g.inner.Publish(ctx, env); err == nil {
			g.record(true)
			return nil
		}
	}
	g.record(false)
	return err
}

// Close implements Sink.
func (g *Guarded) Close() error {
	return g.inner.Close()
}

// Stats returns a copy of the counters.
func (g *Guarded) Stats() GuardStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.State = g.state
	return s
}

func (g *Guarded) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == CircuitOpen {
		if g.now().Sub(g.openedAt) < g.cfg.OpenTimeout {
			g.stats.Rejected++
			return false
		}
		g.state = CircuitHalfOpen
	}
	return true
}

func (g *Guarded) record(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ok {
		g.stats.Published++
		g.state = CircuitClosed
		g.failures = 0
		return
	}
	g.stats.Failed++
	g.failures++
	if g.state == CircuitHalfOpen || (g.cfg.FailureThreshold > 0 && g.failures >= g.cfg.FailureThreshold) {
		g.state = CircuitOpen
		g.openedAt = g.now()
		g.failures = 0
	}
}

func backoff(d, limit time.Duration) time.Duration {
	d *= 2
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
