// Package ingestion runs the refresh operation: fetch a day of visitor
// events, aggregate them, and persist the rollups and visitor records.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/displayforce"
	"visitorinsights/internal/timeframe"
	"visitorinsights/internal/visitors"
)

// Fetcher returns every visitor event of a UTC day. An empty storeID means
// every store.
type Fetcher interface {
	FetchDay(ctx context.Context, day, storeID string) ([]displayforce.Visitor, error)
}

// Result describes one completed refresh.
type Result struct {
	Day         string
	Scope       analytics.Scope
	Tally       analytics.Tally
	Events      int
	RefreshedAt time.Time
}

// Refresher refreshes (day, scope) pairs. Concurrent refreshes of the same
// pair share a single fetch and write.
type Refresher struct {
	db      *gorm.DB
	fetcher Fetcher
	clock   quartz.Clock
	logger  *slog.Logger

	group singleflight.Group
}

// NewRefresher creates a Refresher. A nil clock means the real clock.
func NewRefresher(db *gorm.DB, fetcher Fetcher, clock quartz.Clock, logger *slog.Logger) *Refresher {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Refresher{db: db, fetcher: fetcher, clock: clock, logger: logger}
}

// Refresh fetches, aggregates and stores one day for scope. A fetch failure
// writes nothing. The daily and hourly rollups are written together; a
// failure storing visitor records after that is returned as an error with
// the rollups already saved.
func (r *Refresher) Refresh(ctx context.Context, day time.Time, scope analytics.Scope) (*Result, error) {
	dayStr := timeframe.FormatDay(day)
	key := dayStr + "|" + scope.Key()

	// The shared call must outlive any single caller giving up.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (res any, err error) {
		// DoChan re-panics on its own goroutine, out of reach of any caller.
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Panic recovered in refresh",
					slog.String("day", dayStr),
					slog.String("scope", scope.Key()),
					slog.Any("panic", p))
				res, err = nil, fmt.Errorf("refresh %s for %s panicked: %v", dayStr, scope, p)
			}
		}()
		return r.refresh(shared, dayStr, scope)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug("Joined in-flight refresh", slog.String("day", dayStr), slog.String("scope", scope.Key()))
		}
		return res.Val.(*Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Refresher) refresh(ctx context.Context, day string, scope analytics.Scope) (*Result, error) {
	started := r.clock.Now()

	events, err := r.fetcher.FetchDay(ctx, day, scope.StoreID())
	if err != nil {
		return nil, fmt.Errorf("fetch %s for %s: %w", day, scope, err)
	}

	tally := analytics.Aggregate(events)
	now := r.clock.Now()

	db := r.db.WithContext(ctx)
	if err := analytics.SaveDay(db, day, scope, tally, now); err != nil {
		return nil, fmt.Errorf("save rollups for %s/%s: %w", day, scope, err)
	}

	if err := visitors.InsertMany(db, visitors.FromEvents(events)); err != nil {
		return nil, fmt.Errorf("save visitor records for %s/%s: %w", day, scope, err)
	}

	r.logger.Info("Refreshed day",
		slog.String("day", day),
		slog.String("scope", scope.Key()),
		slog.Int("events", len(events)),
		slog.Int("total", tally.Total),
		slog.Duration("duration", r.clock.Since(started)))

	return &Result{
		Day:         day,
		Scope:       scope,
		Tally:       tally,
		Events:      len(events),
		RefreshedAt: now,
	}, nil
}

// RefreshRange refreshes every day of rng in order and stops at the first
// failure. It returns the number of days refreshed.
func (r *Refresher) RefreshRange(ctx context.Context, rng timeframe.Range, scope analytics.Scope) (int, error) {
	done := 0
	for _, day := range rng.Days() {
		if _, err := r.Refresh(ctx, day, scope); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
