package throttle

import (
	"context"
	"sync"
	"time"
)

// Package throttle bounds in-flight fetch concurrency with an AIMD policy:
// the budget grows by one slot after a run of consecutive successes and
// shrinks multiplicatively on rate-limit or connection-error signals. A fixed
// worker count either gets runs blocked (too many) or wastes wall-clock time
// (too few); AIMD converges without manual tuning.

// Outcome classifies one transport attempt for Observe.
type Outcome int

const (
	Success Outcome = iota
	RateLimited
	Timeout
	ConnectionError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	case ConnectionError:
		return "connection_error"
	default:
		return "unknown"
	}
}

// State reports whether the throttle is currently allowed to grow.
type State int

const (
	Healthy State = iota
	Degraded
)

// Config carries the AIMD constants. The exact values are deployment
// heuristics, so they are configuration rather than code.
type Config struct {
	MinBudget        int
	MaxBudget        int
	InitialBudget    int
	SuccessThreshold int     // consecutive successes per +1 budget
	ShrinkFactor     float64 // multiplied into budget on a failure signal
	Cooldown         time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinBudget < 1 {
		c.MinBudget = 1
	}
	if c.MaxBudget < c.MinBudget {
		c.MaxBudget = c.MinBudget
	}
	if c.InitialBudget < c.MinBudget {
		c.InitialBudget = c.MinBudget
	}
	if c.InitialBudget > c.MaxBudget {
		c.InitialBudget = c.MaxBudget
	}
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = 5
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 {
		c.ShrinkFactor = 0.5
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	return c
}

// Throttle is an explicit concurrency-limiter object, constructed once and
// passed by reference into every fetch call. Its counters are the only
// cross-worker mutable state in the sync core.
type Throttle struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg      Config
	budget   int
	inflight int

	consecutiveSuccesses int
	cooldownUntil        time.Time

	now func() time.Time
}

// New builds a throttle from cfg, normalizing out-of-range constants.
func New(cfg Config) *Throttle {
	cfg = cfg.withDefaults()
	t := &Throttle{
		cfg:    cfg,
		budget: cfg.InitialBudget,
		now:    time.Now,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Acquire blocks until a slot is free or ctx ends. It returns false only when
// the context ended; on true the caller must Release exactly once.
func (t *Throttle) Acquire(ctx context.Context) bool {
	// Wake waiters when the context ends; cond has no native ctx support.
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.inflight >= t.budget {
		if ctx.Err() != nil {
			return false
		}
		t.cond.Wait()
	}
	if ctx.Err() != nil {
		return false
	}
	t.inflight++
	return true
}

// Release frees a slot. Must be called exactly once per successful Acquire,
// on every exit path.
func (t *Throttle) Release() {
	t.mu.Lock()
	if t.inflight > 0 {
		t.inflight--
	}
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Observe feeds one transport outcome into the AIMD policy. Safe under
// concurrent calls from fetch workers.
func (t *Throttle) Observe(outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	switch outcome {
	case RateLimited, ConnectionError:
		t.consecutiveSuccesses = 0
		shrunk := int(float64(t.budget) * t.cfg.ShrinkFactor)
		if shrunk < t.cfg.MinBudget {
			shrunk = t.cfg.MinBudget
		}
		t.budget = shrunk
		t.cooldownUntil = now.Add(t.cfg.Cooldown)
	case Timeout:
		// A timeout is ambiguous: it may be the origin slowing down or our
		// own deadline. Stall growth without giving budget back.
		t.consecutiveSuccesses = 0
	case Success:
		if now.Before(t.cooldownUntil) {
			return
		}
		t.consecutiveSuccesses++
		if t.consecutiveSuccesses >= t.cfg.SuccessThreshold {
			t.consecutiveSuccesses = 0
			if t.budget < t.cfg.MaxBudget {
				t.budget++
				t.cond.Broadcast()
			}
		}
	}
}

// Budget returns the current concurrency budget.
func (t *Throttle) Budget() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budget
}

// Inflight returns the number of currently held slots.
func (t *Throttle) Inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight
}

// MaxBudget returns the configured ceiling; reconciliation sizes its worker
// pool from it and lets Acquire do the admission control.
func (t *Throttle) MaxBudget() int {
	return t.cfg.MaxBudget
}

// State reports Healthy once the cooldown window has passed, Degraded while
// growth is suspended.
func (t *Throttle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.now().Before(t.cooldownUntil) {
		return Degraded
	}
	return Healthy
}
