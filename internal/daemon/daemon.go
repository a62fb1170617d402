// Package daemon wires Meridian's storage, indexing, memory, attention,
// compression, link-graph, and backup components into one process and
// exposes them over an RPC tool registry.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"

	"github.com/antigravity-dev/meridian/internal/attention"
	"github.com/antigravity-dev/meridian/internal/backup"
	"github.com/antigravity-dev/meridian/internal/config"
	"github.com/antigravity-dev/meridian/internal/embed"
	"github.com/antigravity-dev/meridian/internal/kv"
	"github.com/antigravity-dev/meridian/internal/linkgraph"
	"github.com/antigravity-dev/meridian/internal/memory"
	"github.com/antigravity-dev/meridian/internal/rpc"
	"github.com/antigravity-dev/meridian/internal/symbols"
)

// Version is the build identifier stamped into backups and hot-reload
// state.
const Version = "0.1.0"

// Daemon holds every long-lived component the RPC tool surface dispatches
// into. It owns the store and is the single writer of its lifecycle.
type Daemon struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	Store    *kv.Store
	Embedder embed.Embedder
	Symbols  *symbols.Index

	Memory   memory.Tiers
	Working  *memory.Working
	Sessions *SessionManager

	History   *attention.History
	Predictor *attention.Predictor
	Cache     *attention.PredictiveCache
	Retriever *attention.Retriever

	Links *linkgraph.Graph

	Backup    *backup.Manager
	Scheduler *backup.Scheduler

	Monitor  *rpc.Monitor
	Executor *rpc.Executor

	embedPool *PooledEmbedder
}

// New constructs every component from cfg. It opens the store, loads the
// symbol index from disk, and wires the memory/attention/backup subsystems
// together, but starts nothing: Start launches the backup scheduler, and
// the RPC server is built and run by the caller.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	clk := clock.New()

	store, err := kv.Open(cfg.Storage.DBPath, cfg.Storage.BusyTimeoutMS)
	if err != nil {
		return nil, fmt.Errorf("daemon: open store: %w", err)
	}

	embedder := NewPooledEmbedder(func() embed.Embedder {
		return embed.NewHashingEmbedder(cfg.Embedder.Dimension)
	}, 4)

	idx := symbols.New(store, embedder)
	if err := idx.Load(); err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: load symbol index: %w", err)
	}

	episodic := memory.NewEpisodic(store, clk.Now)
	semantic := memory.NewSemantic(store)
	procedural := memory.NewProcedural(store)
	tiers := memory.Tiers{
		Episodic:              episodic,
		Semantic:              semantic,
		Procedural:            procedural,
		RetentionDays:         cfg.Memory.RetentionDays,
		AccessThreshold:       cfg.Memory.AccessCountThreshold,
		PatternValueThreshold: cfg.Memory.PatternValueThreshold,
	}
	working := memory.NewWorking(int(cfg.Memory.WorkingSetCapacityBytes), memory.WeightAdditive)

	history, err := attention.NewHistory(store, cfg.Attention.MaxHistory, clk.Now)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: load attention history: %w", err)
	}
	predictor := attention.NewPredictor()
	cache := attention.NewPredictiveCache(cfg.Attention.CacheCapacity)
	retriever := attention.NewRetriever(history, predictor, cache, working, cfg.Attention.RetrainEvery)

	links := linkgraph.New()

	backupMgr, err := backup.New(store, cfg.Backup.Dir, Version, backup.Retention{
		Scheduled:   cfg.Backup.RetainScheduled,
		Incremental: cfg.Backup.RetainIncremental,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: construct backup manager: %w", err)
	}
	scheduler, err := backup.NewScheduler(backupMgr, cfg.Backup.ScheduledCron, cfg.Storage.SchemaVersion, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: construct backup scheduler: %w", err)
	}

	breaker := rpc.NewCircuitBreaker(cfg.RPC.CircuitErrorPct, cfg.RPC.CircuitWindow.Duration, cfg.RPC.CircuitWindow.Duration, clk.Now)
	executor := rpc.NewExecutor(cfg.RPC.Workers, cfg.RPC.QueueDepth, breaker)
	monitor := rpc.NewMonitor(time.Minute, 0, clk.Now)

	d := &Daemon{
		Config:    cfg,
		Logger:    logger,
		Clock:     clk,
		Store:     store,
		Embedder:  embedder,
		Symbols:   idx,
		Memory:    tiers,
		Working:   working,
		Sessions:  NewSessionManager(int(cfg.Memory.WorkingSetCapacityBytes), memory.WeightAdditive, clk.Now),
		History:   history,
		Predictor: predictor,
		Cache:     cache,
		Retriever: retriever,
		Links:     links,
		Backup:    backupMgr,
		Scheduler: scheduler,
		Monitor:   monitor,
		Executor:  executor,
		embedPool: embedder,
	}
	return d, nil
}

// Start begins the backup scheduler and the embedder pool's health loop.
// The caller is responsible for the RPC server's own lifecycle (built
// separately via BuildRouter + rpc.NewServer).
func (d *Daemon) Start(ctx context.Context) {
	d.Scheduler.Start()
	d.embedPool.StartHealthChecks(ctx, time.Minute)
	go func() {
		<-ctx.Done()
		d.Scheduler.Stop()
	}()
}

// Close releases the daemon's resources. The RPC server is closed by the
// caller before Close is called.
func (d *Daemon) Close() error {
	d.Executor.Close()
	if err := d.embedPool.Close(); err != nil {
		d.Logger.Warn("closing embedder pool", "error", err)
	}
	return d.Store.Close()
}

// BuildRouter assembles the ToolRegistry covering the full tool surface
// and wraps it in a Router with the daemon's configured middleware.
func (d *Daemon) BuildRouter() *rpc.Router {
	registry := rpc.NewToolRegistry()
	d.registerTools(registry)

	middlewares := []rpc.Middleware{rpc.LoggingMiddleware{Logger: d.Logger}}
	if len(d.Config.RPC.AuthTokens) > 0 {
		accepted := make(map[string]bool, len(d.Config.RPC.AuthTokens))
		for _, t := range d.Config.RPC.AuthTokens {
			accepted[t] = true
		}
		middlewares = append(middlewares, rpc.AuthMiddleware{AcceptedTokens: accepted})
	}
	if d.Config.RPC.RateLimitPerSec > 0 {
		middlewares = append(middlewares, rpc.NewRateLimitMiddleware(float64(d.Config.RPC.RateLimitPerSec)))
	}
	return rpc.NewRouter(registry, middlewares...)
}
