// Package stats serves range-level visitor statistics from the rollup cache,
// refreshing days that are missing or stale.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"gorm.io/gorm"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/ingestion"
	"visitorinsights/internal/timeframe"
)

// StalenessWindow is how long a cached rollup for the current UTC day is
// served before it is refreshed again. Past days never go stale.
const StalenessWindow = 5 * time.Minute

// Refresher runs the refresh operation for one day.
type Refresher interface {
	Refresh(ctx context.Context, day time.Time, scope analytics.Scope) (*ingestion.Result, error)
}

// GenderHour holds per-hour counts split by gender.
type GenderHour struct {
	Male   map[int]int `json:"male"`
	Female map[int]int `json:"female"`
}

// VisitorStats is the blended aggregate for a range of days.
type VisitorStats struct {
	Total        int            `json:"total"`
	Men          int            `json:"men"`
	Women        int            `json:"women"`
	AverageAge   int            `json:"averageAge"`
	AgeSum       float64        `json:"ageSum"`
	AgeCount     int            `json:"ageCount"`
	ByDayOfWeek  map[string]int `json:"byDayOfWeek"`
	ByAgeGroup   map[string]int `json:"byAgeGroup"`
	ByHour       map[int]int    `json:"byHour"`
	ByGenderHour GenderHour     `json:"byGenderHour"`

	// Refreshed lists the days that were fetched from the API to answer
	// this request.
	Refreshed []string `json:"refreshedDays"`
}

// Service answers range queries.
type Service struct {
	db        *gorm.DB
	refresher Refresher
	clock     quartz.Clock
	logger    *slog.Logger
}

// NewService creates a Service. A nil clock means the real clock.
func NewService(db *gorm.DB, refresher Refresher, clock quartz.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Service{db: db, refresher: refresher, clock: clock, logger: logger}
}

// IsStale reports whether a cached row must be refreshed: only rows for the
// current UTC day older than StalenessWindow are stale.
func IsStale(row analytics.DailyRollup, now time.Time) bool {
	if row.Day != timeframe.FormatDay(now) {
		return false
	}
	return now.Sub(row.UpdatedAt) > StalenessWindow
}

// VisitorStats blends every day of rng for scope, refreshing days with no
// cached row and a stale row for today. Days are processed in order; the
// first refresh failure aborts the request.
func (s *Service) VisitorStats(ctx context.Context, rng timeframe.Range, scope analytics.Scope) (*VisitorStats, error) {
	dayTimes := rng.Days()
	days := rng.DayStrings()
	cached, err := analytics.ReadDaily(s.db.WithContext(ctx), days, scope)
	if err != nil {
		return nil, err
	}

	var (
		sum       analytics.Tally
		refreshed []string
	)
	now := s.clock.Now()

	for i, day := range days {
		row, hit := cached[day]
		if hit && IsStale(row, now) {
			s.logger.Debug("Cached day is stale", slog.String("day", day), slog.String("scope", scope.Key()))
			hit = false
		}

		var fresh *analytics.Tally
		if hit {
			sum.Merge(row.Tally())
		} else {
			res, err := s.refresher.Refresh(ctx, dayTimes[i], scope)
			if err != nil {
				return nil, fmt.Errorf("refresh %s: %w", day, err)
			}
			fresh = &res.Tally
			sum.Merge(withoutHourly(res.Tally))
			refreshed = append(refreshed, day)
		}

		hourly, err := analytics.ReadHourly(s.db.WithContext(ctx), day, scope)
		if err != nil {
			return nil, err
		}
		switch {
		case len(hourly) > 0:
			sum.MergeHourly(analytics.HourlyTally(hourly))
		case fresh != nil:
			sum.MergeHourly(*fresh)
		}
	}

	return newVisitorStats(sum, refreshed), nil
}

func withoutHourly(t analytics.Tally) analytics.Tally {
	t.ByHour = [24]int{}
	t.MaleByHour = [24]int{}
	t.FemaleByHour = [24]int{}
	return t
}

func newVisitorStats(t analytics.Tally, refreshed []string) *VisitorStats {
	out := &VisitorStats{
		Total:       t.Total,
		Men:         t.Male,
		Women:       t.Female,
		AverageAge:  t.AverageAge(),
		AgeSum:      t.AgeSum,
		AgeCount:    t.AgeCount,
		ByDayOfWeek: make(map[string]int, 7),
		ByAgeGroup:  make(map[string]int, len(analytics.AgeBandLabels)),
		ByHour:      make(map[int]int, 24),
		ByGenderHour: GenderHour{
			Male:   make(map[int]int, 24),
			Female: make(map[int]int, 24),
		},
		Refreshed: refreshed,
	}
	if out.Refreshed == nil {
		out.Refreshed = []string{}
	}

	for _, wd := range analytics.WeekdayOrder {
		out.ByDayOfWeek[analytics.WeekdayLabels[wd]] = t.ByWeekday[wd]
	}
	for band, label := range analytics.AgeBandLabels {
		out.ByAgeGroup[label] = t.ByAge[band]
	}
	for h := 0; h < 24; h++ {
		out.ByHour[h] = t.ByHour[h]
		out.ByGenderHour.Male[h] = t.MaleByHour[h]
		out.ByGenderHour.Female[h] = t.FemaleByHour[h]
	}
	return out
}
