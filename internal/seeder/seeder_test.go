package seeder_test

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/seeder"
	"visitorinsights/internal/testsupport"
	"visitorinsights/internal/timeframe"
	"visitorinsights/internal/visitors"
)

func TestFetchDay(t *testing.T) {
	s := seeder.NewSeeder(nil, testsupport.GetLogger(), 50)
	ctx := context.Background()

	first, err := s.FetchDay(ctx, "2024-01-06", "101")
	require.NoError(t, err)
	again, err := s.FetchDay(ctx, "2024-01-06", "101")
	require.NoError(t, err)

	require.NotEmpty(t, first)
	require.Equal(t, len(first), len(again))
	for i := range first {
		assert.Equal(t, first[i].Identifier(), again[i].Identifier())
		assert.Equal(t, first[i].RawTimestamp(), again[i].RawTimestamp())
	}

	for _, v := range first {
		ts, ok := v.Timestamp()
		require.True(t, ok)
		assert.Equal(t, "2024-01-06", timeframe.FormatDay(ts))
		assert.Equal(t, "101", v.DeviceID())
	}

	t.Run("all stores is the union of each store", func(t *testing.T) {
		all, err := s.FetchDay(ctx, "2024-01-06", "")
		require.NoError(t, err)

		sum := 0
		for _, store := range seeder.DefaultStores {
			events, err := s.FetchDay(ctx, "2024-01-06", store)
			require.NoError(t, err)
			sum += len(events)
		}
		assert.Equal(t, sum, len(all))
	})

	t.Run("invalid day", func(t *testing.T) {
		_, err := s.FetchDay(ctx, "06/01/2024", "")
		assert.ErrorIs(t, err, timeframe.ErrInvalidDay)
	})
}

func TestRun(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	s := seeder.NewSeeder(db, testsupport.GetLogger(), 20)
	s.Stores = []string{"1", "2"}

	rng, err := timeframe.ParseRange("2024-01-01", "2024-01-02")
	require.NoError(t, err)

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))

	written, err := s.Run(context.Background(), rng, clock)
	require.NoError(t, err)
	assert.Equal(t, 6, written)

	all, err := analytics.ReadDaily(db, rng.DayStrings(), analytics.AllStores())
	require.NoError(t, err)
	one, err := analytics.ReadDaily(db, rng.DayStrings(), analytics.Store("1"))
	require.NoError(t, err)
	two, err := analytics.ReadDaily(db, rng.DayStrings(), analytics.Store("2"))
	require.NoError(t, err)

	total := 0
	for _, day := range rng.DayStrings() {
		require.Contains(t, all, day)
		assert.Equal(t, all[day].Total, one[day].Total+two[day].Total)
		assert.Equal(t, all[day].Total, all[day].Male+all[day].Female)
		total += all[day].Total
	}

	records, err := visitors.Count(db)
	require.NoError(t, err)
	assert.Equal(t, int64(total), records)
}
