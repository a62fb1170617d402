package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Resource is a pooled, health-checkable external handle, such as a DB
// connection or an embedder session.
type Resource interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// Factory constructs one new Resource.
type Factory func(ctx context.Context) (Resource, error)

// PoolMetrics is a point-in-time snapshot of pool occupancy.
type PoolMetrics struct {
	Active        int
	Idle          int
	Max           int
	TotalWaitTime time.Duration
	WaitCount     int
}

// Pool manages a bounded set of Resources, reusing idle ones and
// blocking acquisition once Max are active.
type Pool struct {
	factory Factory
	max     int

	mu            sync.Mutex
	idle          []Resource
	active        int
	totalWaitTime time.Duration
	waitCount     int
	closed        bool
	waiters       chan struct{}

	stopHealth chan struct{}
	healthWg   sync.WaitGroup
}

// NewPool constructs a Pool capped at max concurrently active resources,
// built via factory.
func NewPool(factory Factory, max int) *Pool {
	return &Pool{
		factory:    factory,
		max:        max,
		waiters:    make(chan struct{}, max),
		stopHealth: make(chan struct{}),
	}
}

// Acquire returns an idle resource or creates one, blocking if Max are
// already active.
func (p *Pool) Acquire(ctx context.Context) (Resource, error) {
	start := time.Now()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("rpc: pool is closed")
		}
		if n := len(p.idle); n > 0 {
			r := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.active++
			p.recordWait(start)
			p.mu.Unlock()
			return r, nil
		}
		if p.active < p.max {
			p.active++
			p.mu.Unlock()
			r, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
				return nil, fmt.Errorf("rpc: create pooled resource: %w", err)
			}
			p.mu.Lock()
			p.recordWait(start)
			p.mu.Unlock()
			return r, nil
		}
		p.mu.Unlock()

		select {
		case <-p.waiters:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) recordWait(start time.Time) {
	p.totalWaitTime += time.Since(start)
	p.waitCount++
}

// Release returns r to the idle set, notifying one blocked waiter.
func (p *Pool) Release(r Resource) {
	p.mu.Lock()
	p.active--
	if p.closed {
		p.mu.Unlock()
		r.Close()
		return
	}
	p.idle = append(p.idle, r)
	p.mu.Unlock()

	select {
	case p.waiters <- struct{}{}:
	default:
	}
}

// Metrics returns a snapshot of current pool occupancy.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolMetrics{
		Active:        p.active,
		Idle:          len(p.idle),
		Max:           p.max,
		TotalWaitTime: p.totalWaitTime,
		WaitCount:     p.waitCount,
	}
}

// StartHealthChecks runs HealthCheck on every idle resource every
// interval, discarding any that fail so the next Acquire rebuilds it.
func (p *Pool) StartHealthChecks(ctx context.Context, interval time.Duration) {
	p.healthWg.Add(1)
	go func() {
		defer p.healthWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopHealth:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.checkIdle(ctx)
			}
		}
	}()
}

func (p *Pool) checkIdle(ctx context.Context) {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var healthy []Resource
	for _, r := range idle {
		if err := r.HealthCheck(ctx); err == nil {
			healthy = append(healthy, r)
		} else {
			r.Close()
		}
	}

	p.mu.Lock()
	p.idle = append(p.idle, healthy...)
	p.mu.Unlock()
}

// Close stops health checks and closes every idle resource.
func (p *Pool) Close() error {
	close(p.stopHealth)
	p.healthWg.Wait()

	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, r := range idle {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
