package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDial = errors.New("dial failed")

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func run(b *Breaker, success bool) error {
	return b.Execute(func() error {
		if success {
			return nil
		}
		return errDial
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Timeout: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				Timeout: time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success in between keeps it closed",
			settings: Settings{
				Timeout: time.Minute,
				ReadyToTrip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newClock()
			tt.settings.Now = clock.Now
			breaker := New("obs", tt.settings)

			for _, success := range tt.requests {
				_ = run(breaker, success)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerOpenRejectsAndRecovers(t *testing.T) {
	clock := newClock()
	var transitions []string
	b := New("obs", Settings{
		Timeout: 30 * time.Second,
		Now:     clock.Now,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	require.ErrorIs(t, run(b, false), errDial)
	require.ErrorIs(t, run(b, false), errDial)
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, 30*time.Second, b.RetryIn())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 20*time.Second, b.RetryIn())

	clock.Advance(20 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Zero(t, b.RetryIn())

	require.NoError(t, run(b, true))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newClock()
	b := New("obs", Settings{
		Timeout:     time.Second,
		Now:         clock.Now,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_ = run(b, false)
	clock.Advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = run(b, false)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, time.Second, b.RetryIn())
}

func TestBreakerHalfOpenLimitsTrials(t *testing.T) {
	clock := newClock()
	b := New("obs", Settings{
		MaxRequests: 1,
		Timeout:     time.Second,
		Now:         clock.Now,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	_ = run(b, false)
	clock.Advance(time.Second)

	inner := make(chan error, 1)
	err := b.Execute(func() error {
		inner <- b.Execute(func() error { return nil })
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, ErrTooManyRequests)
}

func TestBreakerCounts(t *testing.T) {
	b := New("obs", Settings{Now: newClock().Now})

	_ = run(b, true)
	_ = run(b, true)
	_ = run(b, false)

	counts := b.Counts()
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(2), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	clock := newClock()
	b := New("obs", Settings{Interval: time.Minute, Now: clock.Now})

	_ = run(b, false)
	require.Equal(t, uint32(1), b.Counts().TotalFailures)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{}, b.Counts())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("obs", Settings{Now: newClock().Now})

	assert.Panics(t, func() {
		_ = b.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, uint32(1), b.Counts().TotalFailures)
}

func TestCall(t *testing.T) {
	b := New("obs", Settings{Now: newClock().Now})

	v, err := Call(b, func() (string, error) { return "session", nil })
	require.NoError(t, err)
	assert.Equal(t, "session", v)

	v, err = Call(b, func() (string, error) { return "partial", errDial })
	assert.ErrorIs(t, err, errDial)
	assert.Empty(t, v)
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(5*time.Second, 60*time.Second)

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.Next())
	}

	assert.Equal(t, []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}, got)
	assert.Equal(t, 6, b.Attempt())

	b.Reset()
	assert.Equal(t, 5*time.Second, b.Next())
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, time.Second, b.Initial)
	assert.Equal(t, time.Second, b.Max)
	assert.Equal(t, time.Second, b.Delay(100))
}

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, Sleep(ctx, 0))
}
