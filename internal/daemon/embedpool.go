package daemon

import (
	"context"
	"time"

	"github.com/antigravity-dev/meridian/internal/embed"
	"github.com/antigravity-dev/meridian/internal/rpc"
)

// embedderResource adapts an embed.Embedder to the rpc.Pool Resource
// contract. Closing is a no-op for in-process embedders; model-backed
// implementations release their session here.
type embedderResource struct {
	e embed.Embedder
}

func (r embedderResource) HealthCheck(ctx context.Context) error {
	_, err := r.e.Embed(ctx, "ok")
	return err
}

func (embedderResource) Close() error { return nil }

// PooledEmbedder fronts a bounded rpc.Pool of embedder instances, so a
// non-thread-safe model implementation is never called concurrently and
// acquisition blocks once every instance is busy.
type PooledEmbedder struct {
	pool *rpc.Pool
	dim  int
}

// NewPooledEmbedder builds a PooledEmbedder holding at most max instances
// produced by newEmbedder.
func NewPooledEmbedder(newEmbedder func() embed.Embedder, max int) *PooledEmbedder {
	if max <= 0 {
		max = 4
	}
	probe := newEmbedder()
	pool := rpc.NewPool(func(ctx context.Context) (rpc.Resource, error) {
		return embedderResource{e: newEmbedder()}, nil
	}, max)
	return &PooledEmbedder{pool: pool, dim: probe.Dimension()}
}

// Dimension reports the pooled embedders' stable vector size.
func (p *PooledEmbedder) Dimension() int { return p.dim }

// Embed acquires an instance, embeds text, and returns the instance to the
// pool.
func (p *PooledEmbedder) Embed(ctx context.Context, text string) (embed.Vector, error) {
	r, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.pool.Release(r)
	return r.(embedderResource).e.Embed(ctx, text)
}

// StartHealthChecks begins the pool's periodic idle-instance health loop.
func (p *PooledEmbedder) StartHealthChecks(ctx context.Context, interval time.Duration) {
	p.pool.StartHealthChecks(ctx, interval)
}

// Metrics exposes the underlying pool occupancy.
func (p *PooledEmbedder) Metrics() rpc.PoolMetrics { return p.pool.Metrics() }

// Close shuts the pool down, closing every idle instance.
func (p *PooledEmbedder) Close() error { return p.pool.Close() }
