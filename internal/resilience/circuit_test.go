package resilience_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-marketplace/internal/resilience"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errDown = errors.New("queue down")

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreakerTransitions(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	breaker := resilience.NewBreaker("test-transitions", 2, 0.5, time.Minute).WithClock(clk.Now)
	ctx := context.Background()

	require.ErrorIs(t, breaker.Do(ctx, fail), errDown)
	require.ErrorIs(t, breaker.Do(ctx, fail), errDown)
	require.Equal(t, resilience.Open, breaker.State())

	called := false
	err := breaker.Do(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.False(t, called)

	clk.Advance(time.Minute)
	require.NoError(t, breaker.Do(ctx, ok))
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	breaker := resilience.NewBreaker("test-probe", 1, 0.5, time.Second).WithClock(clk.Now)
	ctx := context.Background()

	require.Error(t, breaker.Do(ctx, fail))
	clk.Advance(time.Second)
	require.ErrorIs(t, breaker.Do(ctx, fail), errDown)
	require.Equal(t, resilience.Open, breaker.State())
	require.ErrorIs(t, breaker.Do(ctx, ok), resilience.ErrOpenCircuit)
}

func TestBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	breaker := resilience.NewBreaker("test-single-probe", 1, 0.5, time.Second).WithClock(clk.Now)
	ctx := context.Background()

	require.Error(t, breaker.Do(ctx, fail))
	clk.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- breaker.Do(ctx, func(context.Context) error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe
	require.ErrorIs(t, breaker.Do(ctx, ok), resilience.ErrOpenCircuit)
	close(release)
	require.NoError(t, <-done)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	breaker := resilience.NewBreaker("test-cancel", 1, 0.5, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := breaker.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, resilience.Closed, breaker.State())
}
