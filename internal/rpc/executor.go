package rpc

import (
	"context"
	"sync"
	"time"
)

// task is one unit of work enqueued to the Executor's worker pool.
type task struct {
	ctx    context.Context
	fn     func(ctx context.Context) (any, error)
	result chan taskResult
}

type taskResult struct {
	value any
	err   error
}

// Executor runs dispatched work on a bounded pool of goroutines fed by a
// bounded queue, guarded by a CircuitBreaker.
type Executor struct {
	queue   chan task
	breaker *CircuitBreaker

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewExecutor starts workers goroutines draining a queue of depth
// queueDepth, guarded by breaker.
func NewExecutor(workers, queueDepth int, breaker *CircuitBreaker) *Executor {
	e := &Executor{
		queue:   make(chan task, queueDepth),
		breaker: breaker,
		closed:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.closed:
			return
		case t, ok := <-e.queue:
			if !ok {
				return
			}
			e.run(t)
		}
	}
}

func (e *Executor) run(t task) {
	value, err := t.fn(t.ctx)
	e.breaker.record(err)
	t.result <- taskResult{value: value, err: err}
}

// Submit enqueues fn, running it with a deadline of timeout when timeout
// is positive, and blocks until it completes, the queue's context is
// cancelled, or the breaker rejects the request while open.
func (e *Executor) Submit(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (any, error)) (any, error) {
	if !e.breaker.Allow() {
		return nil, &RPCError{Code: CodeOverload, Message: "circuit breaker open"}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t := task{ctx: runCtx, fn: fn, result: make(chan taskResult, 1)}

	select {
	case e.queue <- t:
	case <-runCtx.Done():
		return nil, &RPCError{Code: CodeTimeout, Message: "request timed out waiting for a worker"}
	}

	select {
	case r := <-t.result:
		return r.value, r.err
	case <-runCtx.Done():
		return nil, &RPCError{Code: CodeTimeout, Message: "request timed out"}
	}
}

// Close stops accepting new work and waits for in-flight tasks to drain.
func (e *Executor) Close() {
	close(e.closed)
	e.wg.Wait()
}

// breakerState is the closed set of CircuitBreaker states.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker tracks a rolling error rate over Window and trips open
// when it exceeds Threshold, rejecting dispatch until Cooldown elapses,
// then allows a single probe in half_open.
type CircuitBreaker struct {
	threshold float64
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	state        breakerState
	openedAt     time.Time
	outcomes     []outcomeAt
	halfOpenBusy bool
}

type outcomeAt struct {
	at      time.Time
	failure bool
}

// NewCircuitBreaker constructs a CircuitBreaker that opens when the
// failure rate over window exceeds threshold, and stays open for
// cooldown before probing again.
func NewCircuitBreaker(threshold float64, window, cooldown time.Duration, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{threshold: threshold, window: window, cooldown: cooldown, now: now, state: breakerClosed}
}

// Allow reports whether a new request may proceed, transitioning
// open -> half_open once the cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			b.halfOpenBusy = false
		} else {
			return false
		}
		fallthrough
	case breakerHalfOpen:
		if b.halfOpenBusy {
			return false
		}
		b.halfOpenBusy = true
		return true
	}
	return false
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.outcomes = append(b.outcomes, outcomeAt{at: now, failure: err != nil})
	b.outcomes = pruneOutcomes(b.outcomes, now, b.window)

	switch b.state {
	case breakerHalfOpen:
		b.halfOpenBusy = false
		if err != nil {
			b.trip(now)
		} else {
			b.state = breakerClosed
			b.outcomes = nil
		}
	case breakerClosed:
		if rate := failureRate(b.outcomes); rate > b.threshold && len(b.outcomes) > 0 {
			b.trip(now)
		}
	}
}

func (b *CircuitBreaker) trip(now time.Time) {
	b.state = breakerOpen
	b.openedAt = now
}

func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func pruneOutcomes(outcomes []outcomeAt, now time.Time, window time.Duration) []outcomeAt {
	cutoff := now.Add(-window)
	kept := outcomes[:0]
	for _, o := range outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	return kept
}

func failureRate(outcomes []outcomeAt) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	failures := 0
	for _, o := range outcomes {
		if o.failure {
			failures++
		}
	}
	return float64(failures) / float64(len(outcomes))
}
