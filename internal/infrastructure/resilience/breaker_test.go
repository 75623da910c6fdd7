package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFetch = errors.New("fetch failed")

// fakeClock lets tests move time without sleeping
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New("site", settings)
	b.now = clock.now
	b.expiry = clock.now().Add(b.settings.Interval)
	return b, clock
}

func fail() (interface{}, error)    { return nil, errFetch }
func succeed() (interface{}, error) { return "ok", nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{name: "stays closed on successes", requests: []bool{true, true, true}, expectedState: StateClosed},
		{name: "opens after consecutive failures", requests: []bool{false, false, false}, expectedState: StateOpen},
		{name: "success resets the streak", requests: []bool{false, false, true, false, false}, expectedState: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker, _ := newTestBreaker(Settings{
				ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
			})

			for _, ok := range tt.requests {
				if ok {
					_, _ = breaker.Execute(succeed)
				} else {
					_, _ = breaker.Execute(fail)
				}
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{})

	_, err := breaker.Execute(succeed)
	require.NoError(t, err)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	_, err = breaker.Execute(fail)
	assert.ErrorIs(t, err, errFetch)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	breaker, clock := newTestBreaker(Settings{Interval: time.Minute})

	_, _ = breaker.Execute(fail)
	require.Equal(t, uint32(1), breaker.Counts().TotalFailures)

	clock.advance(2 * time.Minute)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, Counts{}, breaker.Counts())
}

func TestBreakerOpenAndHalfOpen(t *testing.T) {
	var transitions []string

	breaker, clock := newTestBreaker(Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_, _ = breaker.Execute(fail)
	_, _ = breaker.Execute(fail)
	require.Equal(t, StateOpen, breaker.State())

	_, err := breaker.Execute(succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clock.advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	for i := 0; i < 2; i++ {
		_, err := breaker.Execute(succeed)
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker, clock := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_, _ = breaker.Execute(fail)
	clock.advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_, _ = breaker.Execute(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerHalfOpenLimitsTrials(t *testing.T) {
	breaker, clock := newTestBreaker(Settings{
		MaxRequests: 1,
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_, _ = breaker.Execute(fail)
	clock.advance(2 * time.Second)

	generation, err := breaker.admit()
	require.NoError(t, err)

	_, err = breaker.Execute(succeed)
	assert.ErrorIs(t, err, ErrTooManyRequests)

	breaker.settle(generation, true)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerIsFailure(t *testing.T) {
	errCaptcha := errors.New("captcha")
	breaker, _ := newTestBreaker(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, errCaptcha)
		},
	})

	_, err := breaker.Execute(func() (interface{}, error) { return nil, errCaptcha })
	assert.ErrorIs(t, err, errCaptcha)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().TotalSuccesses)
}

func TestDoKeepsResultType(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{})

	body, err := Do(breaker, func() ([]byte, error) {
		return []byte("var a = [];"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "var a = [];", string(body))
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker, _ := newTestBreaker(Settings{})

	assert.Panics(t, func() {
		_, _ = breaker.Execute(func() (interface{}, error) { panic("boom") })
	})
	assert.Equal(t, uint32(1), breaker.Counts().TotalFailures)
}
