package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	boom := eris.New("boom")

	for range 2 {
		_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
			return 0, boom
		})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	// Calls now fail fast without invoking fn.
	called := false
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.True(t, eris.Is(err, ErrCircuitOpen))
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, eris.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())

	// After the reset timeout the breaker allows a probe; success closes it.
	now = now.Add(20 * time.Millisecond)
	got, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	_, _ = ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, eris.New("down")
	})

	now = now.Add(20 * time.Millisecond)
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (int, error) {
		return 0, eris.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	t.Parallel()

	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	fail := func(ctx context.Context) (int, error) { return 0, eris.New("x") }
	ok := func(ctx context.Context) (int, error) { return 1, nil }

	_, _ = ExecuteVal(context.Background(), cb, fail)
	_, _ = ExecuteVal(context.Background(), cb, ok)
	_, _ = ExecuteVal(context.Background(), cb, fail)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Empty(t, transitions)
}
