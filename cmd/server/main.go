// Package main provides the entry point for the citation importer service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quillcms/citation-importer/internal/config"
	"github.com/quillcms/citation-importer/internal/contentstore"
	"github.com/quillcms/citation-importer/internal/crossref"
	"github.com/quillcms/citation-importer/internal/database"
	"github.com/quillcms/citation-importer/internal/importer"
	"github.com/quillcms/citation-importer/internal/mapper"
	"github.com/quillcms/citation-importer/internal/observability"
	"github.com/quillcms/citation-importer/internal/resolver"
	httpserver "github.com/quillcms/citation-importer/internal/server/http"
	"github.com/quillcms/citation-importer/internal/sessioncache"
)

// sessionSweepLockKey is the advisory lock key guarding the sweep so
// only one instance purges expired session entries at a time.
const sessionSweepLockKey int64 = 7201

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("citation-importer server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("citation_importer")
	}

	// Wire the import pipeline: registry client, session store, batch
	// resolver, mapper, and import driver.
	sessions := sessioncache.NewPgStore(db).WithMetrics(metrics)
	content := contentstore.NewPgStore(db)

	lookups := crossref.New(crossref.Config{
		BaseURL:    cfg.Crossref.BaseURL,
		SiteURL:    cfg.Crossref.SiteURL,
		MailTo:     cfg.Crossref.MailTo,
		Timeout:    cfg.Crossref.Timeout,
		RateLimit:  cfg.Crossref.RateLimit,
		BurstSize:  cfg.Crossref.BurstSize,
		MaxRetries: cfg.Crossref.MaxRetries,
		Metrics:    metrics,
	})

	res := resolver.New(lookups, sessions, metrics, logger, nil, resolver.Config{
		PauseEvery: cfg.Resolver.PauseEvery,
		PauseFor:   cfg.Resolver.PauseFor,
		SessionTTL: cfg.Resolver.SessionTTL,
	})

	imp := importer.New(sessions, content, mapper.New(), metrics, logger, importer.Config{
		DefaultItemType:  cfg.Importer.DefaultItemType,
		AllowedItemTypes: cfg.Importer.AllowedItemTypes,
	})

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    5 * time.Minute, // Long timeout for SSE streaming.
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AdminHeader:     cfg.Security.AdminHeader,
		AdminRole:       cfg.Security.AdminRole,
		SessionTTL:      cfg.Resolver.SessionTTL,
		PauseEvery:      cfg.Resolver.PauseEvery,
	}

	httpSrv := httpserver.NewServer(httpCfg, res, imp, sessions, db, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Periodically purge expired session entries.
	go runSessionSweeper(ctx, db, sessions, metrics, logger, cfg.Session.SweepInterval)

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("citation-importer is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down citation-importer")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("citation-importer shutdown complete")
	return nil
}

// runSessionSweeper purges expired session entries at the configured
// interval. An advisory lock keeps concurrent instances from sweeping
// the same rows.
func runSessionSweeper(
	ctx context.Context,
	db *database.DB,
	sessions sessioncache.Store,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	interval time.Duration,
) {
	if interval <= 0 {
		interval = time.Hour
	}
	logger = logger.With().Str("component", "session-sweeper").Logger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		acquired, err := db.AcquireAdvisoryLock(ctx, sessionSweepLockKey)
		if err != nil {
			logger.Error().Err(err).Msg("failed to acquire sweep lock")
			continue
		}
		if !acquired {
			continue
		}

		purged, err := sessions.DeleteExpired(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to purge expired session entries")
		} else if purged > 0 {
			logger.Info().Int64("purged", purged).Msg("purged expired session entries")
			if metrics != nil {
				metrics.RecordSessionEntriesPurged(purged)
			}
		}

		if err := db.ReleaseAdvisoryLock(ctx, sessionSweepLockKey); err != nil {
			logger.Error().Err(err).Msg("failed to release sweep lock")
		}
	}
}
