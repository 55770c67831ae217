// Package internal contains core application functionality
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/coder/quartz"
	"github.com/gofiber/fiber/v2"

	"visitorinsights/internal/config"
	"visitorinsights/internal/database"
	"visitorinsights/internal/displayforce"
	"visitorinsights/internal/http"
	"visitorinsights/internal/ingestion"
	"visitorinsights/internal/jobs"
	"visitorinsights/internal/logging"
	"visitorinsights/internal/stats"
)

// Application wires configuration, storage, the API client, the background
// scheduler and the HTTP server.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Client    *displayforce.Client
	Refresher *ingestion.Refresher
	Stats     *stats.Service
	Scheduler *jobs.Scheduler
	Server    *fiber.App

	serveErr chan error
}

type appOptions struct {
	clock     quartz.Clock
	logger    *slog.Logger
	dbManager *database.DBManager
	fetcher   ingestion.Fetcher
	devices   http.DeviceLister
}

// Option customises NewAppWithConfig.
type Option func(*appOptions)

// WithClock replaces the real clock.
func WithClock(clock quartz.Clock) Option {
	return func(o *appOptions) { o.clock = clock }
}

// WithLogger replaces the configured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *appOptions) { o.logger = logger }
}

// WithDBManager uses an already connected database.
func WithDBManager(dm *database.DBManager) Option {
	return func(o *appOptions) { o.dbManager = dm }
}

// WithFetcher replaces the DisplayForce client as the source of visitor events.
func WithFetcher(f ingestion.Fetcher) Option {
	return func(o *appOptions) { o.fetcher = f }
}

// WithDeviceLister replaces the DisplayForce client as the source of devices.
func WithDeviceLister(d http.DeviceLister) Option {
	return func(o *appOptions) { o.devices = d }
}

// NewApp creates a new application instance with default settings
func NewApp(opts ...Option) (*Application, error) {
	return NewAppWithConfig(config.GetConfig(), opts...)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config, opts ...Option) (*Application, error) {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = quartz.NewReal()
	}

	logger := o.logger
	if logger == nil {
		logger = logging.NewLogger(cfg, nil)
	}

	dbManager := o.dbManager
	if dbManager == nil {
		dbManager = database.NewDBManager(cfg, logger)
		if err := dbManager.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	client := displayforce.NewClient(displayforce.Options{
		BaseURL:           cfg.DisplayForceBaseURL,
		Token:             cfg.DisplayForceToken,
		Timeout:           cfg.DisplayForceTimeout(),
		RequestsPerSecond: cfg.DisplayForceRequestsPerSecond,
		Logger:            logger,
	})
	if cfg.DisplayForceToken == "" && o.fetcher == nil {
		logger.Warn("DisplayForce token is not set; refreshes will fail until it is configured")
	}

	var fetcher ingestion.Fetcher = client
	if o.fetcher != nil {
		fetcher = o.fetcher
	}
	var devices http.DeviceLister = client
	if o.devices != nil {
		devices = o.devices
	}

	db := dbManager.GetConnection()
	refresher := ingestion.NewRefresher(db, fetcher, o.clock, logger)
	statsService := stats.NewService(db, refresher, o.clock, logger)

	scheduler := jobs.NewScheduler(refresher, logger, jobs.Options{
		Enabled:      cfg.JobsEnabled,
		BackfillDays: cfg.BackfillDays,
		Clock:        o.clock,
		Retention:    jobs.NewRetentionJob(db, logger, o.clock, cfg.RecordRetentionDays),
	})

	handlers := &http.Handlers{
		DBManager: dbManager,
		Logger:    logger,
		Stats:     statsService,
		Refresher: refresher,
		Devices:   devices,
		Clock:     o.clock,
	}

	return &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Client:    client,
		Refresher: refresher,
		Stats:     statsService,
		Scheduler: scheduler,
		Server:    NewServer(cfg, handlers),
	}, nil
}

// StartAsync starts the background jobs and begins serving HTTP on the
// configured port without blocking.
func (a *Application) StartAsync() error {
	ln, err := net.Listen("tcp", ":"+a.Config.GetPort())
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", a.Config.GetPort(), err)
	}
	return a.StartWithListener(ln)
}

// StartWithListener is StartAsync on an existing listener.
func (a *Application) StartWithListener(ln net.Listener) error {
	if err := a.Scheduler.Start(); err != nil {
		ln.Close()
		return fmt.Errorf("failed to start background jobs: %w", err)
	}

	a.serveErr = make(chan error, 1)
	go func() {
		a.serveErr <- a.Server.Listener(ln)
	}()

	a.Logger.Info("Server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops accepting requests, waits for the background jobs to
// finish their current refresh and closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if a.serveErr != nil {
		if err := a.Server.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
		if err := <-a.serveErr; err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	stopped := make(chan struct{})
	go func() {
		a.Scheduler.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop background jobs: %w", ctx.Err()))
	}

	if err := a.DBManager.CheckpointWAL("TRUNCATE"); err != nil {
		a.Logger.Warn("WAL checkpoint failed", slog.Any("error", err))
	}
	if err := a.DBManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	return errors.Join(errs...)
}
