package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/ingestion"
	"visitorinsights/internal/timeframe"
)

// RefreshInterval is the period of the "today" refresh job.
const RefreshInterval = 5 * time.Minute

// DefaultBackfillDays is how many days before today the startup backfill covers.
const DefaultBackfillDays = 7

// Refresher runs the refresh operation for one day.
type Refresher interface {
	Refresh(ctx context.Context, day time.Time, scope analytics.Scope) (*ingestion.Result, error)
}

// Options configures a Scheduler.
type Options struct {
	Enabled      bool
	BackfillDays int
	Clock        quartz.Clock

	// Retention, when enabled, runs once at start and then daily.
	Retention *RetentionJob
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	refresher    Refresher
	logger       *slog.Logger
	clock        quartz.Clock
	enabled      bool
	backfillDays int
	retention    *RetentionJob

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
	running   map[string]bool

	refreshTicker   *quartz.Ticker
	retentionTicker *quartz.Ticker
}

func NewScheduler(refresher Refresher, logger *slog.Logger, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	backfillDays := opts.BackfillDays
	if backfillDays < 0 {
		backfillDays = DefaultBackfillDays
	}

	return &Scheduler{
		refresher:    refresher,
		logger:       logger,
		clock:        clock,
		enabled:      opts.Enabled,
		backfillDays: backfillDays,
		retention:    opts.Retention,
		ctx:          ctx,
		cancel:       cancel,
		running:      make(map[string]bool),
	}
}

// executeJobSafely runs a job unless the same job is still running from a
// previous tick. Panics are recovered and logged.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.mu.Lock()
	if s.running[jobName] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", jobName))
		s.mu.Unlock()
		return
	}
	s.running[jobName] = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.mu.Lock()
		s.running[jobName] = false
		s.mu.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start launches the backfill and the periodic refresh of today.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Info("Background jobs already running.")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	s.logger.Info("Starting background jobs...")

	s.startBackfillJob()
	s.startRefreshJob()
	if s.retention.Enabled() {
		s.startRetentionJob()
	}

	s.logger.Info("Background jobs started",
		slog.Int("backfill_days", s.backfillDays),
		slog.Duration("refresh_interval", RefreshInterval))
	return nil
}

func (s *Scheduler) startBackfillJob() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeJobSafely("backfill", func() error {
			failed := s.Backfill(s.ctx)
			if failed > 0 {
				return fmt.Errorf("%d day(s) failed to backfill", failed)
			}
			return nil
		})
	}()
}

func (s *Scheduler) startRefreshJob() {
	s.logger.Info("Starting refresh job", slog.Duration("interval", RefreshInterval))
	s.refreshTicker = s.clock.NewTicker(RefreshInterval, "scheduler", "refresh")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.executeJobSafely("refresh_today", s.RefreshToday)

		for {
			select {
			case <-s.refreshTicker.C:
				s.executeJobSafely("refresh_today", s.RefreshToday)
			case <-s.ctx.Done():
				s.logger.Info("Refresh job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startRetentionJob() {
	s.logger.Info("Starting retention job", slog.Duration("interval", RetentionInterval))
	s.retentionTicker = s.clock.NewTicker(RetentionInterval, "scheduler", "retention")

	run := func() error {
		_, err := s.retention.Run(s.ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.executeJobSafely("retention", run)

		for {
			select {
			case <-s.retentionTicker.C:
				s.executeJobSafely("retention", run)
			case <-s.ctx.Done():
				s.logger.Info("Retention job stopped")
				return
			}
		}
	}()
}

// refreshCtx is the context for a single refresh. It is not cancelled by
// Stop, so a refresh that has started is allowed to finish.
func (s *Scheduler) refreshCtx() context.Context {
	return context.WithoutCancel(s.ctx)
}

// RefreshToday refreshes the current UTC day for all stores.
func (s *Scheduler) RefreshToday() error {
	_, err := s.refresher.Refresh(s.refreshCtx(), timeframe.Today(s.clock), analytics.AllStores())
	return err
}

// Backfill refreshes every day from backfillDays ago through today, oldest
// first, for all stores. A failed day is logged and skipped. It stops early
// when ctx is done and returns the number of failed days.
func (s *Scheduler) Backfill(ctx context.Context) int {
	rng := timeframe.LastDays(s.backfillDays, s.clock)
	s.logger.Info("Starting backfill", slog.String("range", rng.String()))

	failed := 0
	for _, day := range rng.Days() {
		select {
		case <-ctx.Done():
			s.logger.Info("Backfill interrupted", slog.String("next_day", timeframe.FormatDay(day)))
			return failed
		default:
		}

		if _, err := s.refresher.Refresh(context.WithoutCancel(ctx), day, analytics.AllStores()); err != nil {
			failed++
			s.logger.Error("Backfill failed for day",
				slog.String("day", timeframe.FormatDay(day)),
				slog.Any("error", err))
			continue
		}
	}

	s.logger.Info("Backfill finished", slog.Int("days", rng.Len()), slog.Int("failed", failed))
	return failed
}

// Stop halts all background jobs and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")

	s.cancel()
	if s.refreshTicker != nil {
		s.refreshTicker.Stop()
	}
	if s.retentionTicker != nil {
		s.retentionTicker.Stop()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
