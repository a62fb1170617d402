package rpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	id      int
	healthy atomic.Bool
	closed  atomic.Bool
}

func newFakeResource(id int) *fakeResource {
	r := &fakeResource{id: id}
	r.healthy.Store(true)
	return r
}

func (r *fakeResource) HealthCheck(ctx context.Context) error {
	if r.healthy.Load() {
		return nil
	}
	return errors.New("unhealthy")
}

func (r *fakeResource) Close() error {
	r.closed.Store(true)
	return nil
}

func TestPoolAcquireReleaseReusesIdle(t *testing.T) {
	var created int32
	factory := func(ctx context.Context) (Resource, error) {
		atomic.AddInt32(&created, 1)
		return newFakeResource(int(created)), nil
	}
	p := NewPool(factory, 2)
	defer p.Close()

	r1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(r1)

	r2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, r1, r2)
	require.Equal(t, int32(1), atomic.LoadInt32(&created))
}

func TestPoolAcquireBlocksAtMaxUntilRelease(t *testing.T) {
	factory := func(ctx context.Context) (Resource, error) {
		return newFakeResource(1), nil
	}
	p := NewPool(factory, 1)
	defer p.Close()

	r1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r2, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.Same(t, r1, r2)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Release(r1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
}

func TestPoolMetricsReportsOccupancy(t *testing.T) {
	factory := func(ctx context.Context) (Resource, error) {
		return newFakeResource(1), nil
	}
	p := NewPool(factory, 3)
	defer p.Close()

	r1, _ := p.Acquire(context.Background())
	m := p.Metrics()
	require.Equal(t, 1, m.Active)
	require.Equal(t, 3, m.Max)

	p.Release(r1)
	m = p.Metrics()
	require.Equal(t, 0, m.Active)
	require.Equal(t, 1, m.Idle)
}

func TestPoolHealthCheckDiscardsUnhealthyIdle(t *testing.T) {
	factory := func(ctx context.Context) (Resource, error) {
		return newFakeResource(1), nil
	}
	p := NewPool(factory, 1)
	defer p.Close()

	r1, _ := p.Acquire(context.Background())
	fr := r1.(*fakeResource)
	p.Release(r1)

	fr.healthy.Store(false)
	p.checkIdle(context.Background())

	require.True(t, fr.closed.Load())
	require.Equal(t, 0, p.Metrics().Idle)
}
