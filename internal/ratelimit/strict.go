package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls during its
// cool-down window.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation
	BreakerOpen                         // rejecting all calls until cool-down expires
	BreakerHalfOpen                     // allowing a single probe attempt
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StrictConfig configures the strict raw-ledger path.
type StrictConfig struct {
	// MinDelay is the unconditional minimum spacing between requests.
	MinDelay time.Duration
	// MaxConsecutive429 opens the breaker after this many throttling
	// rejections in a row (default: 3).
	MaxConsecutive429 int
	// Cooldown is how long the breaker rejects calls before half-opening
	// (default: 60s).
	Cooldown time.Duration
	// OnStateChange is called outside the lock on every transition.
	OnStateChange func(from, to BreakerState)
}

// StrictLimiter serializes bursts with a minimum inter-request delay and
// opens a circuit after consecutive throttling failures. Only consecutive
// 429-equivalent rejections count toward opening; any other error resets
// the counter.
type StrictLimiter struct {
	mu            sync.Mutex
	minDelay      time.Duration
	max429        int
	cooldown      time.Duration
	onStateChange func(from, to BreakerState)

	state          BreakerState
	consecutive429 int
	openedAt       time.Time
	lastRequest    time.Time
	now            func() time.Time
	sleep          func(time.Duration)
}

// NewStrictLimiter creates a strict limiter with defaults applied.
func NewStrictLimiter(cfg StrictConfig) *StrictLimiter {
	if cfg.MaxConsecutive429 <= 0 {
		cfg.MaxConsecutive429 = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	return &StrictLimiter{
		minDelay:      cfg.MinDelay,
		max429:        cfg.MaxConsecutive429,
		cooldown:      cfg.Cooldown,
		onStateChange: cfg.OnStateChange,
		state:         BreakerClosed,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// Acquire blocks for the minimum inter-request delay and checks the breaker.
// Returns ErrCircuitOpen without performing any waiting when the breaker is
// rejecting calls. On success the caller must report the outcome via
// RecordSuccess / Record429 / RecordFailure.
func (l *StrictLimiter) Acquire() error {
	l.mu.Lock()

	switch l.state {
	case BreakerOpen:
		if l.now().Sub(l.openedAt) < l.cooldown {
			l.mu.Unlock()
			return ErrCircuitOpen
		}
		// Cool-down expired: allow exactly one probe.
		l.setStateLocked(BreakerHalfOpen)
	case BreakerHalfOpen:
		// A probe is already in flight this cycle; reject further calls
		// until its outcome is recorded.
		l.mu.Unlock()
		return ErrCircuitOpen
	}

	wait := time.Duration(0)
	if !l.lastRequest.IsZero() {
		elapsed := l.now().Sub(l.lastRequest)
		if elapsed < l.minDelay {
			wait = l.minDelay - elapsed
		}
	}
	l.lastRequest = l.now().Add(wait)
	l.mu.Unlock()

	if wait > 0 {
		l.sleep(wait)
	}
	return nil
}

// RecordSuccess closes the breaker and resets the failure counter.
func (l *StrictLimiter) RecordSuccess() {
	l.mu.Lock()
	l.consecutive429 = 0
	l.setStateLocked(BreakerClosed)
	l.mu.Unlock()
}

// Record429 records a throttling rejection. Opens the breaker once the
// consecutive count reaches the threshold, and re-opens immediately when a
// half-open probe is throttled.
func (l *StrictLimiter) Record429() {
	l.mu.Lock()
	l.consecutive429++
	if l.state == BreakerHalfOpen || l.consecutive429 >= l.max429 {
		l.openedAt = l.now()
		l.setStateLocked(BreakerOpen)
	}
	l.mu.Unlock()
}

// RecordFailure records a non-throttle error. Only consecutive throttling
// counts toward opening, so the counter resets. A failed half-open probe
// still re-opens the breaker.
func (l *StrictLimiter) RecordFailure() {
	l.mu.Lock()
	l.consecutive429 = 0
	if l.state == BreakerHalfOpen {
		l.openedAt = l.now()
		l.setStateLocked(BreakerOpen)
	}
	l.mu.Unlock()
}

// State returns the current breaker state.
func (l *StrictLimiter) State() BreakerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// setStateLocked transitions state and fires the callback. Caller holds l.mu;
// the callback is deferred until after unlock via goroutine-free convention:
// callbacks here must not call back into the limiter.
func (l *StrictLimiter) setStateLocked(to BreakerState) {
	from := l.state
	if from == to {
		return
	}
	l.state = to
	if l.onStateChange != nil {
		l.onStateChange(from, to)
	}
}
