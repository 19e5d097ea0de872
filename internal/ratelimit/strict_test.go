package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStrictLimiter(cfg StrictConfig) (*StrictLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewStrictLimiter(cfg)
	l.now = clock.now
	l.sleep = func(d time.Duration) { clock.advance(d) }
	return l, clock
}

func TestStrictLimiter_Defaults(t *testing.T) {
	l := NewStrictLimiter(StrictConfig{})
	assert.Equal(t, 3, l.max429)
	assert.Equal(t, 60*time.Second, l.cooldown)
	assert.Equal(t, BreakerClosed, l.State())
}

func TestStrictLimiter_OpensAfterExactlyMax429(t *testing.T) {
	l, _ := newTestStrictLimiter(StrictConfig{MaxConsecutive429: 3})

	for i := 0; i < 2; i++ {
		require.NoError(t, l.Acquire())
		l.Record429()
		assert.Equal(t, BreakerClosed, l.State(), "breaker must stay closed below threshold")
	}

	require.NoError(t, l.Acquire())
	l.Record429()
	assert.Equal(t, BreakerOpen, l.State())

	// Rejected without any I/O attempt during cool-down.
	assert.ErrorIs(t, l.Acquire(), ErrCircuitOpen)
}

func TestStrictLimiter_HalfOpenAfterCooldown(t *testing.T) {
	l, clock := newTestStrictLimiter(StrictConfig{MaxConsecutive429: 1, Cooldown: 60 * time.Second})

	require.NoError(t, l.Acquire())
	l.Record429()
	require.Equal(t, BreakerOpen, l.State())

	// Within cool-down: rejected.
	clock.advance(30 * time.Second)
	assert.ErrorIs(t, l.Acquire(), ErrCircuitOpen)

	// After cool-down: one probe allowed, further calls rejected until the
	// probe's outcome is recorded.
	clock.advance(31 * time.Second)
	require.NoError(t, l.Acquire())
	assert.ErrorIs(t, l.Acquire(), ErrCircuitOpen)

	l.RecordSuccess()
	assert.Equal(t, BreakerClosed, l.State())
	assert.NoError(t, l.Acquire())
}

func TestStrictLimiter_Throttled429ProbeReopens(t *testing.T) {
	l, clock := newTestStrictLimiter(StrictConfig{MaxConsecutive429: 1, Cooldown: 10 * time.Second})

	require.NoError(t, l.Acquire())
	l.Record429()
	clock.advance(11 * time.Second)

	require.NoError(t, l.Acquire())
	l.Record429()
	assert.Equal(t, BreakerOpen, l.State())
	assert.ErrorIs(t, l.Acquire(), ErrCircuitOpen)
}

func TestStrictLimiter_NonThrottleErrorResetsCounter(t *testing.T) {
	l, _ := newTestStrictLimiter(StrictConfig{MaxConsecutive429: 2})

	require.NoError(t, l.Acquire())
	l.Record429()

	// A non-429 error resets the consecutive counter.
	require.NoError(t, l.Acquire())
	l.RecordFailure()

	require.NoError(t, l.Acquire())
	l.Record429()
	assert.Equal(t, BreakerClosed, l.State(), "counter must restart after non-throttle error")

	require.NoError(t, l.Acquire())
	l.Record429()
	assert.Equal(t, BreakerOpen, l.State())
}

func TestStrictLimiter_MinDelaySerializesBursts(t *testing.T) {
	l, clock := newTestStrictLimiter(StrictConfig{MinDelay: 500 * time.Millisecond})

	start := clock.t
	require.NoError(t, l.Acquire())
	l.RecordSuccess()
	require.NoError(t, l.Acquire())
	l.RecordSuccess()
	require.NoError(t, l.Acquire())

	// Two enforced gaps of MinDelay each.
	assert.GreaterOrEqual(t, clock.t.Sub(start), time.Second)
}

func TestStrictLimiter_StateChangeCallback(t *testing.T) {
	var transitions []string
	l, clock := newTestStrictLimiter(StrictConfig{
		MaxConsecutive429: 1,
		Cooldown:          time.Second,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	require.NoError(t, l.Acquire())
	l.Record429()
	clock.advance(2 * time.Second)
	require.NoError(t, l.Acquire())
	l.RecordSuccess()

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
