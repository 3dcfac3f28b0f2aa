// Package indexworker parses index worker flags and launches the consumer
// runtime.
package indexworker

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/harborlaw/intake/internal/intake/app"
	intakesync "github.com/harborlaw/intake/internal/intake/sync"
	entrypoint "github.com/harborlaw/intake/internal/platform/cmd"
	"github.com/harborlaw/intake/internal/platform/logging"
)

// Config holds index worker command configuration.
type Config struct {
	DBPath    string `env:"INTAKE_INDEX_DB_PATH" envDefault:"data/index.db"`
	LogLevel  string `env:"INTAKE_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"INTAKE_LOG_PRETTY"`

	Sync intakesync.Settings
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The index SQLite database path")
	fs.StringVar(&cfg.Sync.Addr, "redis-addr", cfg.Sync.Addr, "Redis address for the sync stream")
	fs.StringVar(&cfg.Sync.Group, "redis-group", cfg.Sync.Group, "Redis consumer group for the sync stream")
	fs.StringVar(&cfg.Sync.Consumer, "redis-consumer", cfg.Sync.Consumer, "Redis consumer name for the sync stream")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the index worker runtime.
func Run(ctx context.Context, cfg Config) error {
	logging.Setup(entrypoint.ServiceIndexWorker, cfg.LogLevel, cfg.LogPretty)

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceIndexWorker, func(ctx context.Context) error {
		return app.RunIndexWorker(ctx, app.IndexWorkerConfig{
			DBPath: cfg.DBPath,
			Sync:   cfg.Sync,
			Logger: log.Logger,
		})
	})
}
