// Package app wires the intake engine's runtime components: storage, the
// session service, the HTTP API, the outbox forwarder, and the index applier.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/harborlaw/intake/internal/intake/api/http"
	"github.com/harborlaw/intake/internal/intake/conflict"
	"github.com/harborlaw/intake/internal/intake/identity"
	"github.com/harborlaw/intake/internal/intake/index"
	indexsqlite "github.com/harborlaw/intake/internal/intake/index/sqlite"
	"github.com/harborlaw/intake/internal/intake/session"
	sqlitestore "github.com/harborlaw/intake/internal/intake/storage/sqlite"
	intakesync "github.com/harborlaw/intake/internal/intake/sync"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultDBPath      = "data/intake.db"
	defaultIndexDBPath = "data/index.db"

	httpReadHeaderTimeout = 5 * time.Second
	httpShutdownTimeout   = 10 * time.Second
)

// EngineConfig controls the intake engine runtime.
type EngineConfig struct {
	HTTPAddr     string
	DBPath       string
	LoginBaseURL string

	ConflictCheckerURL    string
	ConflictCheckerAPIKey string

	// IndexDBPath enables the in-process index applier and the firm-facing
	// index routes. Leave empty when a separate index worker owns the index.
	IndexDBPath string

	ForwardInterval time.Duration
	ForwardBatch    int

	Sync     intakesync.Settings
	Identity identity.VerifierConfig
	Logger   zerolog.Logger
}

// RunEngine starts the intake engine and blocks until the context is
// canceled or a component fails.
func RunEngine(ctx context.Context, cfg EngineConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.ConflictCheckerURL) == "" {
		return fmt.Errorf("conflict checker url is required")
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}

	store, err := openStore(cfg.DBPath, sqlitestore.Open)
	if err != nil {
		return fmt.Errorf("open intake store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			cfg.Logger.Error().Err(closeErr).Msg("close intake store")
		}
	}()

	transport, err := intakesync.NewTransport(cfg.Sync, cfg.Logger)
	if err != nil {
		return fmt.Errorf("build sync transport: %w", err)
	}
	defer func() {
		if closeErr := transport.Close(); closeErr != nil {
			cfg.Logger.Error().Err(closeErr).Msg("close sync transport")
		}
	}()

	sessions, err := session.NewService(session.Config{
		Store:        store,
		Checker:      conflict.NewHTTPChecker(cfg.ConflictCheckerURL, cfg.ConflictCheckerAPIKey, nil),
		LoginBaseURL: cfg.LoginBaseURL,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("build session service: %w", err)
	}

	var indexStore index.Store
	var applier *index.Applier
	if strings.TrimSpace(cfg.IndexDBPath) != "" {
		idx, err := openStore(cfg.IndexDBPath, indexsqlite.Open)
		if err != nil {
			return fmt.Errorf("open index store: %w", err)
		}
		defer func() {
			if closeErr := idx.Close(); closeErr != nil {
				cfg.Logger.Error().Err(closeErr).Msg("close index store")
			}
		}()
		indexStore = idx
		applier = index.NewApplier(transport.Subscriber(), idx, cfg.Logger)
	}

	handler, err := httpapi.NewHandler(httpapi.Config{
		Sessions: sessions,
		Index:    indexStore,
		Identity: cfg.Identity,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	forwarder := intakesync.NewForwarder(store, transport.Publisher(), cfg.ForwardInterval, cfg.ForwardBatch, cfg.Logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		cfg.Logger.Info().Str("addr", cfg.HTTPAddr).Msg("intake http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return ignoreCanceled(forwarder.Run(groupCtx))
	})
	if applier != nil {
		group.Go(func() error {
			return ignoreCanceled(applier.Run(groupCtx))
		})
	}

	err = group.Wait()
	sessions.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// IndexWorkerConfig controls the standalone index worker runtime.
type IndexWorkerConfig struct {
	DBPath string
	Sync   intakesync.Settings
	Logger zerolog.Logger
}

// RunIndexWorker consumes the sync stream into the index store until the
// context is canceled. It requires a cross-process transport.
func RunIndexWorker(ctx context.Context, cfg IndexWorkerConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.Sync.Addr) == "" {
		return fmt.Errorf("sync redis address is required for the index worker")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultIndexDBPath
	}

	idx, err := openStore(cfg.DBPath, indexsqlite.Open)
	if err != nil {
		return fmt.Errorf("open index store: %w", err)
	}
	defer func() {
		if closeErr := idx.Close(); closeErr != nil {
			cfg.Logger.Error().Err(closeErr).Msg("close index store")
		}
	}()

	transport, err := intakesync.NewTransport(cfg.Sync, cfg.Logger)
	if err != nil {
		return fmt.Errorf("build sync transport: %w", err)
	}
	defer func() {
		if closeErr := transport.Close(); closeErr != nil {
			cfg.Logger.Error().Err(closeErr).Msg("close sync transport")
		}
	}()

	applier := index.NewApplier(transport.Subscriber(), idx, cfg.Logger)
	return ignoreCanceled(applier.Run(ctx))
}

// openStore ensures the database directory exists before opening.
func openStore[S any](path string, open func(string) (S, error)) (S, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			var zero S
			return zero, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return open(path)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
