// Package seeder fills a development database with synthetic visitor
// traffic. The generated events go through the same refresh pipeline as
// real API data, so rollups and visitor records stay consistent.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/coder/quartz"
	"gorm.io/gorm"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/displayforce"
	"visitorinsights/internal/ingestion"
	"visitorinsights/internal/timeframe"
)

// DefaultStores are the device ids used when none are given.
var DefaultStores = []string{"101", "102", "103"}

// hourWeights shapes the daily traffic curve: closed overnight, a lunch peak
// and an early evening peak.
var hourWeights = [24]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	2, 4, 6, 8, 10, 9, 7, 6,
	7, 9, 10, 8, 5, 3, 1, 0,
}

// Seeder handles the data seeding process.
type Seeder struct {
	DB             *gorm.DB
	Logger         *slog.Logger
	VisitorsPerDay int
	Stores         []string
	Seed           uint64
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, logger *slog.Logger, visitorsPerDay int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DB:             db,
		Logger:         logger,
		VisitorsPerDay: visitorsPerDay,
		Stores:         DefaultStores,
		Seed:           1,
	}
}

// FetchDay generates the events of one day. The output depends only on the
// seed, the day and the store, so repeated calls agree with each other. An
// empty storeID returns the events of every store.
func (s *Seeder) FetchDay(ctx context.Context, day, storeID string) ([]displayforce.Visitor, error) {
	date, err := timeframe.ParseDay(day)
	if err != nil {
		return nil, err
	}

	stores := s.Stores
	if storeID != "" {
		stores = []string{storeID}
	}

	var out []displayforce.Visitor
	for _, store := range stores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		events, err := s.generateStoreDay(date, store)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}

func (s *Seeder) generateStoreDay(date time.Time, store string) ([]displayforce.Visitor, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s", timeframe.FormatDay(date), store)
	rng := rand.New(rand.NewPCG(s.Seed, h.Sum64()))

	// Weekends are busier.
	count := s.VisitorsPerDay
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		count = count * 3 / 2
	}
	count += rng.IntN(count/5 + 1)

	totalWeight := 0
	for _, w := range hourWeights {
		totalWeight += w
	}

	events := make([]displayforce.Visitor, 0, count)
	for i := 0; i < count; i++ {
		hour := pickHour(rng, totalWeight)
		ts := date.Add(time.Duration(hour)*time.Hour + time.Duration(rng.IntN(3600))*time.Second)

		sex := 2
		if rng.Float64() < 0.47 {
			sex = 1
		}

		// Roughly one in twenty detections has no age estimate.
		age := 0.0
		if rng.IntN(20) > 0 {
			age = float64(min(85, max(14, int(rng.NormFloat64()*13+36))))
		}

		smile := "no"
		if rng.Float64() < 0.35 {
			smile = "yes"
		}

		id := fmt.Sprintf("seed-%s-%s-%05d", timeframe.FormatDay(date), store, i)
		raw := map[string]any{
			"visitor_id": id,
			"start":      ts.Format(time.RFC3339),
			"end":        ts.Add(time.Duration(5+rng.IntN(90)) * time.Second).Format(time.RFC3339),
			"store_name": "Loja " + store,
			"sex":        sex,
			"age":        age,
			"tracks": []map[string]any{
				{"id": id + "-t0", "start": ts.Format(time.RFC3339), "device_id": store},
			},
			"additional_attributes": map[string]any{"smile": smile},
		}

		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var v displayforce.Visitor
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		events = append(events, v)
	}
	return events, nil
}

func pickHour(rng *rand.Rand, totalWeight int) int {
	n := rng.IntN(totalWeight)
	for hour, w := range hourWeights {
		if n < w {
			return hour
		}
		n -= w
	}
	return 12
}

// Run seeds every day of rng for all stores and for each store on its own.
// It returns the number of (day, scope) pairs written.
func (s *Seeder) Run(ctx context.Context, rng timeframe.Range, clock quartz.Clock) (int, error) {
	start := time.Now()
	s.Logger.Info("Seeding visitor data...",
		slog.String("range", rng.String()),
		slog.Int("visitorsPerDay", s.VisitorsPerDay),
		slog.Int("stores", len(s.Stores)))

	refresher := ingestion.NewRefresher(s.DB, s, clock, s.Logger)

	scopes := []analytics.Scope{analytics.AllStores()}
	for _, store := range s.Stores {
		scopes = append(scopes, analytics.Store(store))
	}

	written := 0
	for _, scope := range scopes {
		n, err := refresher.RefreshRange(ctx, rng, scope)
		written += n
		if err != nil {
			return written, fmt.Errorf("seed %s: %w", scope, err)
		}
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("written", written),
		slog.Duration("elapsed", time.Since(start)))
	return written, nil
}
