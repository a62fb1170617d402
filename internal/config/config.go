// Package config loads and validates the Meridian daemon TOML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the top-level daemon configuration, built once at startup and
// handed explicitly to every component constructor. No component reads
// ambient/global configuration.
type Config struct {
	General   General   `toml:"general"`
	Storage   Storage   `toml:"storage"`
	Parser    Parser    `toml:"parser"`
	Embedder  Embedder  `toml:"embedder"`
	Memory    Memory    `toml:"memory"`
	Attention Attention `toml:"attention"`
	Compress  Compress  `toml:"compress"`
	Backup    Backup    `toml:"backup"`
	RPC       RPC       `toml:"rpc"`
}

// General holds process-wide settings.
type General struct {
	LogLevel string `toml:"log_level"`
	DevLogs  bool   `toml:"dev_logs"`
}

// Storage configures the KV layer.
type Storage struct {
	DBPath        string `toml:"db_path"`
	SchemaVersion int    `toml:"schema_version"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
}

// Parser configures the parser adapter.
type Parser struct {
	IgnoreGlobs []string `toml:"ignore_globs"`
}

// Embedder configures embedding generation.
type Embedder struct {
	Dimension int `toml:"dimension"`
}

// Memory configures memory tier retention and consolidation.
type Memory struct {
	RetentionDays           int      `toml:"retention_days"`
	PatternValueThreshold   float64  `toml:"pattern_value_threshold"`
	AccessCountThreshold    int      `toml:"access_count_threshold"`
	WorkingSetCapacityBytes int64    `toml:"working_set_capacity_bytes"`
	SemanticMergeJaccard    float64  `toml:"semantic_merge_jaccard"`
	ConsolidationInterval   Duration `toml:"consolidation_interval"`
}

// Attention configures the attention retriever.
type Attention struct {
	MaxHistory      int      `toml:"max_history"`
	CacheCapacity   int      `toml:"cache_capacity"`
	RetrainEvery    int      `toml:"retrain_every"`
	TokenPerSymbol  int      `toml:"token_per_symbol"`
	RecencyHalfLife Duration `toml:"recency_half_life"`
}

// Compress configures the context compressor.
type Compress struct {
	DefaultStrategy string `toml:"default_strategy"`
}

// Backup configures scheduled/retained backups.
type Backup struct {
	Dir               string `toml:"dir"`
	ScheduledCron     string `toml:"scheduled_cron"`
	RetainScheduled   int    `toml:"retain_scheduled"`
	RetainIncremental int    `toml:"retain_incremental"`
}

// RPC configures the binary RPC server.
type RPC struct {
	UnixSocket      string   `toml:"unix_socket"`
	TCPBind         string   `toml:"tcp_bind"`
	Workers         int      `toml:"workers"`
	QueueDepth      int      `toml:"queue_depth"`
	MaxFrameBytes   int      `toml:"max_frame_bytes"`
	MaxStreams      int      `toml:"max_streams"`
	RateLimitPerSec int      `toml:"rate_limit_per_sec"`
	AuthTokens      []string `toml:"auth_tokens"`
	CircuitErrorPct float64  `toml:"circuit_error_pct"`
	CircuitWindow   Duration `toml:"circuit_window"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		General:  General{LogLevel: "info"},
		Storage:  Storage{DBPath: "meridian.db", SchemaVersion: 1, BusyTimeoutMS: 5000},
		Embedder: Embedder{Dimension: 256},
		Memory: Memory{
			RetentionDays:           30,
			PatternValueThreshold:   0.2,
			AccessCountThreshold:    3,
			WorkingSetCapacityBytes: 10 * 1024 * 1024,
			SemanticMergeJaccard:    0.8,
			ConsolidationInterval:   Duration{time.Hour},
		},
		Attention: Attention{
			MaxHistory:      1000,
			CacheCapacity:   1000,
			RetrainEvery:    10,
			TokenPerSymbol:  100,
			RecencyHalfLife: Duration{24 * time.Hour},
		},
		Compress: Compress{DefaultStrategy: "hybrid"},
		Backup: Backup{
			Dir:               "backups",
			ScheduledCron:     "0 0 0 * * *",
			RetainScheduled:   7,
			RetainIncremental: 10,
		},
		RPC: RPC{
			UnixSocket:      "/tmp/meridian.sock",
			Workers:         8,
			QueueDepth:      256,
			MaxFrameBytes:   100 * 1024 * 1024,
			MaxStreams:      10,
			RateLimitPerSec: 50,
			CircuitErrorPct: 0.5,
			CircuitWindow:   Duration{30 * time.Second},
		},
	}
}

// Load reads a TOML configuration file, applying defaults for anything unset.
// A missing file is not an error: the daemon starts with defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would violate RPC protocol bounds.
func (c *Config) Validate() error {
	if c.RPC.MaxFrameBytes > 100*1024*1024 {
		return fmt.Errorf("config: rpc.max_frame_bytes %d exceeds the 100MiB protocol ceiling", c.RPC.MaxFrameBytes)
	}
	if c.RPC.Workers <= 0 {
		return fmt.Errorf("config: rpc.workers must be positive")
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("config: embedder.dimension must be positive")
	}
	return nil
}
