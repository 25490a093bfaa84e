package config

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/kon-rad/wuhistory/internal/protein"
)

type Config struct {
	Port                  string        `env:"WUH_PORT,default=9090"`
	DBPath                string        `env:"WUH_DB_PATH,default=/data/WuHistory.db3"`
	LogLevel              string        `env:"WUH_LOG_LEVEL,default=info"`
	FeedPath              string        `env:"WUH_FEED_PATH"`
	FeedPoll              time.Duration `env:"WUH_FEED_POLL,default=500ms"`
	QueriesPath           string        `env:"WUH_QUERIES_PATH,default=/data/WuHistoryQuery.yaml"`
	ProteinsPath          string        `env:"WUH_PROTEINS_PATH"`
	BonusMode             string        `env:"WUH_BONUS_MODE,default=DownloadTime"`
	AutoUpgrade           bool          `env:"WUH_AUTO_UPGRADE,default=true"`
	ImportConcurrency     int           `env:"WUH_IMPORT_CONCURRENCY,default=4"`
	MetricsInterval       time.Duration `env:"WUH_METRICS_INTERVAL,default=15s"`
	WALCheckpointInterval time.Duration `env:"WUH_WAL_CHECKPOINT_INTERVAL,default=10m"`
	WALRestartThresholdB  int64         `env:"WUH_WAL_RESTART_THRESHOLD_BYTES,default=52428800"`
}

func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration through l, which lets callers layer a
// config file or flags over the environment.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("invalid config: WUH_DB_PATH is empty")
	}
	if _, err := protein.ParseBonusMode(c.BonusMode); err != nil {
		return fmt.Errorf("invalid config: WUH_BONUS_MODE: %w", err)
	}
	if c.FeedPoll <= 0 {
		return fmt.Errorf("invalid config: WUH_FEED_POLL must be positive")
	}
	if c.ImportConcurrency < 1 {
		return fmt.Errorf("invalid config: WUH_IMPORT_CONCURRENCY must be at least 1")
	}
	if c.MetricsInterval <= 0 || c.WALCheckpointInterval <= 0 {
		return fmt.Errorf("invalid config: intervals must be positive")
	}
	return nil
}

// Bonus returns the parsed default bonus mode.
func (c *Config) Bonus() protein.BonusMode {
	m, _ := protein.ParseBonusMode(c.BonusMode)
	return m
}

func WriteHelp(w io.Writer, version string) {
	fmt.Fprintf(w, "wuhistory %s\n\n", version)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  WUH_PORT=9090")
	fmt.Fprintln(w, "  WUH_DB_PATH=/data/WuHistory.db3")
	fmt.Fprintln(w, "  WUH_LOG_LEVEL=info")
	fmt.Fprintln(w, "  WUH_FEED_PATH=")
	fmt.Fprintln(w, "  WUH_FEED_POLL=500ms")
	fmt.Fprintln(w, "  WUH_QUERIES_PATH=/data/WuHistoryQuery.yaml")
	fmt.Fprintln(w, "  WUH_PROTEINS_PATH=")
	fmt.Fprintln(w, "  WUH_BONUS_MODE=DownloadTime")
	fmt.Fprintln(w, "  WUH_AUTO_UPGRADE=true")
	fmt.Fprintln(w, "  WUH_IMPORT_CONCURRENCY=4")
	fmt.Fprintln(w, "  WUH_METRICS_INTERVAL=15s")
	fmt.Fprintln(w, "  WUH_WAL_CHECKPOINT_INTERVAL=10m")
	fmt.Fprintln(w, "  WUH_WAL_RESTART_THRESHOLD_BYTES=52428800")
}
