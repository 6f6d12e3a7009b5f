// Package app wires the service together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/shortsync/internal/api"
	"github.com/jonesrussell/shortsync/internal/cleanup"
	"github.com/jonesrussell/shortsync/internal/config"
	"github.com/jonesrussell/shortsync/internal/database"
	"github.com/jonesrussell/shortsync/internal/dedup"
	"github.com/jonesrussell/shortsync/internal/ingest"
	"github.com/jonesrussell/shortsync/internal/logger"
	"github.com/jonesrussell/shortsync/internal/metrics"
	"github.com/jonesrussell/shortsync/internal/orchestrator"
	"github.com/jonesrussell/shortsync/internal/quota"
	"github.com/jonesrussell/shortsync/internal/scheduler"
	"github.com/jonesrussell/shortsync/internal/stats"
	"github.com/jonesrussell/shortsync/internal/threshold"
	"github.com/jonesrussell/shortsync/internal/uploader"
	"github.com/jonesrussell/shortsync/internal/worker"
)

const (
	// DefaultShutdownTimeout is the default timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	pingTimeout = 5 * time.Second
)

// Mode selects which halves of the service to run.
type Mode string

const (
	// ModeScheduler runs only the background cycle worker.
	ModeScheduler Mode = "scheduler"
	// ModeAPI runs only the reporting/control HTTP server.
	ModeAPI Mode = "api"
	// ModeBoth runs the worker and the HTTP server in one process.
	ModeBoth Mode = "both"
)

// App represents the shortsync service with all its dependencies.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client
	tracker     *dedup.Tracker
	worker      *worker.CycleWorker
	httpServer  *http.Server
	mode        Mode
	version     string
	configPath  string
}

// Options contains configuration for creating a new App.
type Options struct {
	ConfigPath string
	Version    string
	Mode       Mode
}

// New creates an App instance with all dependencies initialized.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "shortsync"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	repo := database.NewRepository(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
		_ = db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", pingErr)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	location, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		return nil, fmt.Errorf("quota timezone: %w", err)
	}
	ledger := quota.NewLedger(quota.Config{
		DailyBudget:  cfg.Quota.DailyBudget,
		Location:     location,
		LowWaterMark: cfg.Quota.LowWaterMark,
	}, repo, m, appLogger)

	engine := threshold.NewEngine(cfg.Threshold, appLogger)
	window := stats.NewWindow(repo, cfg.Stats.WindowSize, cfg.Stats.Retention, nil, appLogger)

	accountant, err := cleanup.New(ctx, repo, nil, appLogger)
	if err != nil {
		return nil, fmt.Errorf("create cleanup accountant: %w", err)
	}

	defs, err := groupDefinitions(cfg.Groups)
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(ctx, defs, repo, nil, appLogger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	tracker := dedup.NewTracker(redisClient, cfg.Redis.DedupTTL, appLogger)
	ingestClient := ingest.NewClient(&cfg.Ingest, appLogger)
	uploaderClient := uploader.NewClient(&cfg.Uploader, appLogger)

	orch := orchestrator.New(orchestrator.Deps{
		Scheduler: sched,
		Ledger:    ledger,
		Engine:    engine,
		Window:    window,
		Dedup:     tracker,
		Fetcher:   ingestClient,
		Publisher: uploaderClient,
		Checker:   uploaderClient,
		Tokens:    ingestClient,
		Costs:     cfg.Quota.OperationCosts,
		Config:    cfg.Scheduler,
		Metrics:   m,
		Logger:    appLogger,
	})

	cycleWorker := worker.NewCycleWorker(orch, window, worker.Config{
		TickInterval: cfg.Scheduler.TickInterval,
	}, appLogger)

	router := api.NewRouter(api.Deps{
		Groups:     sched,
		Quota:      ledger,
		Thresholds: engine,
		Runs:       orch,
		Cleanup:    accountant,
		Dedup:      tracker,
		DB:         db,
		Redis:      redisClient,
		Gatherer:   registry,
		Logger:     appLogger,
		Debug:      cfg.Debug,
		Version:    opts.Version,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeBoth
	}

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		tracker:     tracker,
		worker:      cycleWorker,
		httpServer:  httpServer,
		mode:        mode,
		version:     opts.Version,
		configPath:  opts.ConfigPath,
	}, nil
}

// groupDefinitions translates configured groups into scheduler definitions.
func groupDefinitions(groups []config.GroupConfig) ([]scheduler.Definition, error) {
	defs := make([]scheduler.Definition, 0, len(groups))
	for i := range groups {
		g := &groups[i]
		days, err := g.Weekdays()
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.ID, err)
		}
		defs = append(defs, scheduler.Definition{
			ID:          g.ID,
			Channels:    g.Channels,
			PublishDays: days,
			RunInterval: g.RunInterval,
		})
	}
	return defs, nil
}

// Run starts the configured components and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	if a.mode == ModeScheduler || a.mode == ModeBoth {
		a.logger.Info("Starting cycle worker",
			logger.String("config_path", a.configPath),
			logger.Duration("tick_interval", a.config.Scheduler.TickInterval),
		)
		a.worker.Start(workerCtx)
	}

	if a.mode == ModeAPI || a.mode == ModeBoth {
		go func() {
			a.logger.Info("Starting HTTP server",
				logger.String("address", a.config.Server.Address),
			)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	return a.waitForShutdown(ctx, workerCancel, serverErr)
}

// waitForShutdown handles graceful shutdown.
func (a *App) waitForShutdown(ctx context.Context, workerCancel context.CancelFunc, serverErr chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var shutdownErr error

	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)

	case err := <-serverErr:
		a.logger.Error("Server error", logger.Error(err))
		shutdownErr = err

	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down")
	}

	workerCancel()
	a.worker.Stop()
	a.shutdownHTTPServer()

	a.logger.Info("Service stopped")
	return shutdownErr
}

// shutdownHTTPServer gracefully shuts down the HTTP server.
func (a *App) shutdownHTTPServer() {
	if a.httpServer == nil || (a.mode != ModeAPI && a.mode != ModeBoth) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// FlushCache clears the published-candidate dedup cache.
func (a *App) FlushCache(ctx context.Context) error {
	return a.tracker.FlushAll(ctx)
}

// Close cleans up resources.
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger {
	return a.logger
}
