// Package intake parses intake service flags and launches the engine runtime.
package intake

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborlaw/intake/internal/intake/app"
	"github.com/harborlaw/intake/internal/intake/identity"
	intakesync "github.com/harborlaw/intake/internal/intake/sync"
	entrypoint "github.com/harborlaw/intake/internal/platform/cmd"
	"github.com/harborlaw/intake/internal/platform/logging"
)

// Config holds intake engine command configuration.
type Config struct {
	HTTPAddr        string        `env:"INTAKE_HTTP_ADDR" envDefault:":8080"`
	DBPath          string        `env:"INTAKE_DB_PATH" envDefault:"data/intake.db"`
	IndexDBPath     string        `env:"INTAKE_INDEX_DB_PATH" envDefault:"data/index.db"`
	LoginBaseURL    string        `env:"INTAKE_LOGIN_BASE_URL"`
	CheckerURL      string        `env:"INTAKE_CONFLICT_CHECKER_URL"`
	CheckerAPIKey   string        `env:"INTAKE_CONFLICT_CHECKER_API_KEY"`
	ForwardInterval time.Duration `env:"INTAKE_SYNC_FORWARD_INTERVAL" envDefault:"1s"`
	ForwardBatch    int           `env:"INTAKE_SYNC_FORWARD_BATCH" envDefault:"32"`
	LogLevel        string        `env:"INTAKE_LOG_LEVEL" envDefault:"info"`
	LogPretty       bool          `env:"INTAKE_LOG_PRETTY"`

	Sync intakesync.Settings
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The intake SQLite database path")
	fs.StringVar(&cfg.IndexDBPath, "index-db-path", cfg.IndexDBPath, "The index SQLite database path (empty disables the in-process index)")
	fs.StringVar(&cfg.LoginBaseURL, "login-base-url", cfg.LoginBaseURL, "Base URL for visitor login links")
	fs.StringVar(&cfg.CheckerURL, "checker-url", cfg.CheckerURL, "Conflict checker endpoint URL")
	fs.DurationVar(&cfg.ForwardInterval, "forward-interval", cfg.ForwardInterval, "Sync outbox forwarding interval")
	fs.IntVar(&cfg.ForwardBatch, "forward-batch", cfg.ForwardBatch, "Sync outbox forwarding batch size")
	fs.StringVar(&cfg.Sync.Addr, "redis-addr", cfg.Sync.Addr, "Redis address for the sync stream (empty keeps it in-process)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the intake engine runtime.
func Run(ctx context.Context, cfg Config) error {
	logging.Setup(entrypoint.ServiceIntake, cfg.LogLevel, cfg.LogPretty)

	var verifier identity.VerifierConfig
	if os.Getenv("INTAKE_IDENTITY_ISSUER") != "" {
		loaded, err := identity.LoadVerifierConfigFromEnv(nil)
		if err != nil {
			return err
		}
		verifier = loaded
	} else {
		log.Warn().Msg("identity verification is not configured, conversations cannot be secured")
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceIntake, func(ctx context.Context) error {
		return app.RunEngine(ctx, app.EngineConfig{
			HTTPAddr:              cfg.HTTPAddr,
			DBPath:                cfg.DBPath,
			LoginBaseURL:          cfg.LoginBaseURL,
			ConflictCheckerURL:    cfg.CheckerURL,
			ConflictCheckerAPIKey: cfg.CheckerAPIKey,
			IndexDBPath:           cfg.IndexDBPath,
			ForwardInterval:       cfg.ForwardInterval,
			ForwardBatch:          cfg.ForwardBatch,
			Sync:                  cfg.Sync,
			Identity:              verifier,
			Logger:                log.Logger,
		})
	})
}
