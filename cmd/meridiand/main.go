package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/antigravity-dev/meridian/internal/config"
	"github.com/antigravity-dev/meridian/internal/daemon"
	"github.com/antigravity-dev/meridian/internal/rpc"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "meridian.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	lockPath := flag.String("lock-file", "/tmp/meridiand.lock", "single-instance lock file path")
	stateImport := flag.String("state-import", "", "path to a predecessor's exported server state (hot reload)")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootLogger)
	bootLogger.Info("meridiand starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := configureLogger(cfg.General.LogLevel, *dev || cfg.General.DevLogs)
	slog.SetDefault(logger)

	lockFile, err := daemon.AcquireLock(*lockPath)
	if err != nil {
		logger.Error("failed to acquire lock", "error", err)
		os.Exit(1)
	}
	defer daemon.ReleaseLock(lockFile)

	d, err := daemon.New(cfg, logger.With("component", "daemon"))
	if err != nil {
		logger.Error("failed to construct daemon", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("error closing daemon", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)

	router := d.BuildRouter()
	server := rpc.NewServer(rpc.ServerConfig{
		UnixSocketPath: cfg.RPC.UnixSocket,
		TCPAddr:        cfg.RPC.TCPBind,
		MaxFrameBytes:  uint32(cfg.RPC.MaxFrameBytes),
		RequestTimeout: 30 * time.Second,
		MaxStreams:     cfg.RPC.MaxStreams,
	}, router, d.Executor, d.Monitor, logger.With("component", "rpc"))

	if *stateImport != "" {
		data, err := os.ReadFile(*stateImport)
		if err != nil {
			logger.Warn("state import read failed", "path", *stateImport, "error", err)
		} else if prev, err := rpc.Import(data); err != nil {
			logger.Warn("state import rejected", "path", *stateImport, "error", err)
		} else {
			logger.Info("imported predecessor state",
				"predecessor_pid", prev.PID,
				"connections", len(prev.Connections),
				"streams", len(prev.Streams),
			)
		}
	}

	go func() {
		if err := server.ListenAndServe(ctx); err != nil {
			logger.Error("rpc server error", "error", err)
		}
	}()

	logger.Info("meridiand running",
		"unix_socket", cfg.RPC.UnixSocket,
		"tcp_bind", cfg.RPC.TCPBind,
		"workers", cfg.RPC.Workers,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR2, syscall.SIGINT, syscall.SIGTERM)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGUSR2:
			statePath := cfg.RPC.UnixSocket + ".state"
			data, err := rpc.Export(server.ExportState(nil))
			if err != nil {
				logger.Error("state export failed", "error", err)
				continue
			}
			if err := os.WriteFile(statePath, data, 0o600); err != nil {
				logger.Error("state export write failed", "path", statePath, "error", err)
				continue
			}
			logger.Info("server state exported for hot reload", "path", statePath)
		case syscall.SIGHUP:
			reloaded, err := config.Load(*configPath)
			if err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			cfg = reloaded
			logger = configureLogger(cfg.General.LogLevel, *dev || cfg.General.DevLogs)
			slog.SetDefault(logger)
			logger.Info("config reloaded (note: storage/rpc bind changes require restart)")
		case syscall.SIGINT, syscall.SIGTERM:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)

			server.StopAccepting()
			server.DrainConnections(10 * time.Second)
			cancel()

			logger.Info("meridiand stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		default:
			cancel()
			return
		}
	}
}
