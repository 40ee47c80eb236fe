package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourove-a/splaro/internal/api"
	"github.com/sourove-a/splaro/internal/campaign"
	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/db"
	"github.com/sourove-a/splaro/internal/lease"
	"github.com/sourove-a/splaro/internal/metrics"
	"github.com/sourove-a/splaro/internal/notifier"
	"github.com/sourove-a/splaro/internal/repository"
	"github.com/sourove-a/splaro/internal/runner"
	"github.com/sourove-a/splaro/internal/scheduler"
	"github.com/sourove-a/splaro/internal/segment"
)

// App is the main application
type App struct {
	config    *config.Config
	version   string
	db        *db.DB
	campaigns *repository.CampaignRepository
	jobs      *repository.JobRepository
	store     *campaign.Store
	resolver  *segment.Resolver
	notifier  notifier.Notifier
	locker    lease.Locker
	runner    *runner.Runner
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	logger    *slog.Logger

	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	collector     *metrics.Collector
}

// New opens the database and builds every component. Nothing is started.
func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	logger := NewLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		config:    cfg,
		version:   version,
		db:        database,
		campaigns: repository.NewCampaignRepository(database.DB),
		jobs:      repository.NewJobRepository(database.DB),
		logger:    logger,
	}

	a.store = campaign.NewStore(a.campaigns, cfg.Campaigns, logger)
	a.resolver = segment.NewResolver(repository.NewDirectoryRepository(database.DB), cfg.Segments, logger)

	a.notifier, err = notifier.New(cfg.Notifier, logger)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	logger.Info("notifier ready", "driver", cfg.Notifier.Driver, "rate_per_second", cfg.Notifier.RatePerSecond)

	a.locker, err = lease.New(ctx, cfg.Lease, logger)
	if err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("failed to create lease locker: %w", err)
	}

	logs := repository.NewDeliveryLogRepository(database.DB)
	a.runner = runner.New(runner.Deps{
		Campaigns: a.store,
		Resolver:  a.resolver,
		Jobs:      a.jobs,
		Logs:      logs,
		Notifier:  a.notifier,
		Locker:    a.locker,
	}, cfg.Runner, cfg.Server.PublicURL, logger)

	a.scheduler = scheduler.New(a.campaigns, a.store, a.runner, cfg.Scheduler.Interval, logger)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		metrics.SetGlobal(a.metrics)
		a.metricsServer = metrics.NewServer(a.metrics, cfg.Metrics, logger)
		a.collector = metrics.NewCollector(a.metrics, a.campaigns, a.jobs, cfg.Database.Path, cfg.Metrics.CollectInterval, logger)
	}

	a.apiServer = api.NewServer(api.Deps{
		Campaigns: a.store,
		Resolver:  a.resolver,
		Runner:    a.runner,
		Jobs:      a.jobs,
		Logs:      logs,
	}, cfg, version, logger)

	return a, nil
}

// Store returns the campaign store
func (a *App) Store() *campaign.Store { return a.store }

// Resolver returns the segment resolver
func (a *App) Resolver() *segment.Resolver { return a.resolver }

// Runner returns the job runner
func (a *App) Runner() *runner.Runner { return a.runner }

// Scheduler returns the dispatch scheduler
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Notifier returns the configured notifier
func (a *App) Notifier() notifier.Notifier { return a.notifier }

// Recover fails the jobs a previous process left unfinished
func (a *App) Recover(ctx context.Context) error {
	return a.runner.Recover(ctx)
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting splaro campaigns",
		"version", a.version,
		"api_addr", a.config.Server.ListenAddr,
		"public_url", a.config.Server.PublicURL,
		"scheduler", a.config.Scheduler.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Jobs interrupted by a crash must not block their campaigns
	if err := a.Recover(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)

	if a.collector != nil {
		a.collector.Start(ctx)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if a.config.Scheduler.Enabled {
		a.scheduler.Start()
	} else {
		a.logger.Info("scheduler disabled")
	}

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop creating work first, then let running jobs record their outcome
	a.scheduler.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	a.runner.Stop()

	if a.collector != nil {
		a.collector.Stop()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.closeStorage()

	a.logger.Info("shutdown complete")
	return nil
}

// Close releases storage without the server lifecycle, for one-shot commands
func (a *App) Close() {
	a.scheduler.Stop()
	a.runner.Stop()
	a.closeStorage()
}

func (a *App) closeStorage() {
	if c, ok := a.locker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Error("lease close error", "error", err)
		}
	}
	if c, ok := a.notifier.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Error("notifier close error", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
