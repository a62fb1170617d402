package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorSubmitRunsAndReturnsResult(t *testing.T) {
	breaker := NewCircuitBreaker(0.5, time.Minute, time.Second, nil)
	e := NewExecutor(2, 4, breaker)
	defer e.Close()

	result, err := e.Submit(context.Background(), 0, func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
}

func TestExecutorSubmitTimesOut(t *testing.T) {
	breaker := NewCircuitBreaker(0.5, time.Minute, time.Second, nil)
	e := NewExecutor(1, 1, breaker)
	defer e.Close()

	_, err := e.Submit(context.Background(), 10*time.Millisecond, func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return nil, ctx.Err()
	})
	require.Error(t, err)
	require.Equal(t, CodeTimeout, err.(*RPCError).Code)
}

func TestCircuitBreakerTripsOpenAfterThresholdExceeded(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	b := NewCircuitBreaker(0.5, time.Minute, time.Second, now)

	require.True(t, b.Allow())
	b.record(errors.New("boom"))
	require.Equal(t, "open", b.State())
	require.False(t, b.Allow())
}

func TestCircuitBreakerHalfOpenProbeRecoversOnSuccess(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	b := NewCircuitBreaker(0.5, time.Minute, time.Second, now)

	b.Allow()
	b.record(errors.New("boom"))
	require.Equal(t, "open", b.State())

	clock = clock.Add(2 * time.Second)
	require.True(t, b.Allow())
	require.Equal(t, "half_open", b.State())

	b.record(nil)
	require.Equal(t, "closed", b.State())
}

func TestCircuitBreakerHalfOpenProbeReopensOnFailure(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	b := NewCircuitBreaker(0.5, time.Minute, time.Second, now)

	b.Allow()
	b.record(errors.New("boom"))
	clock = clock.Add(2 * time.Second)
	require.True(t, b.Allow())

	b.record(errors.New("still broken"))
	require.Equal(t, "open", b.State())
}

func TestExecutorOverloadWhenBreakerOpen(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }
	breaker := NewCircuitBreaker(0.5, time.Minute, time.Minute, now)
	e := NewExecutor(1, 1, breaker)
	defer e.Close()

	breaker.Allow()
	breaker.record(errors.New("boom"))

	_, err := e.Submit(context.Background(), 0, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	require.Equal(t, CodeOverload, err.(*RPCError).Code)
}
