package timeframe_test

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorinsights/internal/timeframe"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-01-31", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{" 2024-02-29 ", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{"2023-02-29", time.Time{}, true},
		{"2024-1-5", time.Time{}, true},
		{"31/01/2024", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := timeframe.ParseDay(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, timeframe.ErrInvalidDay)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestFormatDayUsesUTC(t *testing.T) {
	brt := time.FixedZone("BRT", -3*3600)
	assert.Equal(t, "2024-01-02", timeframe.FormatDay(time.Date(2024, 1, 1, 22, 0, 0, 0, brt)))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		timeframe.StartOfDay(time.Date(2024, 1, 1, 22, 0, 0, 0, brt)))
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		wantDays   int
		wantErr    error
	}{
		{"single day", "2024-01-01", "2024-01-01", 1, nil},
		{"week", "2024-01-01", "2024-01-07", 7, nil},
		{"across a leap day", "2024-02-28", "2024-03-01", 3, nil},
		{"end before start", "2024-01-02", "2024-01-01", 0, timeframe.ErrInvalidRange},
		{"malformed start", "yesterday", "2024-01-01", 0, timeframe.ErrInvalidDay},
		{"malformed end", "2024-01-01", "2024-13-01", 0, timeframe.ErrInvalidDay},
		{"a full leap year", "2024-01-01", "2024-12-31", 366, nil},
		{"longer than the limit", "2024-01-01", "2025-01-01", 0, timeframe.ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := timeframe.ParseRange(tt.start, tt.end)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, rng.Len())
			assert.Len(t, rng.Days(), tt.wantDays)
		})
	}
}

func TestParseRangeWithDefaults(t *testing.T) {
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 5, 20, 23, 59, 0, 0, time.UTC))

	rng, err := timeframe.ParseRangeWithDefaults("", "", clock)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-20..2024-05-20", rng.String())

	rng, err = timeframe.ParseRangeWithDefaults("2024-05-01", "", clock)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01..2024-05-01", rng.String())

	rng, err = timeframe.ParseRangeWithDefaults("2024-05-01", "2024-05-03", clock)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01", "2024-05-02", "2024-05-03"}, rng.DayStrings())
}

func TestLastDays(t *testing.T) {
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC))

	rng := timeframe.LastDays(3, clock)
	assert.Equal(t, []string{"2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}, rng.DayStrings())
	assert.Equal(t, timeframe.Today(clock), rng.End)
}
