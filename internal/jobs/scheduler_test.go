package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"visitorinsights/internal/analytics"
	"visitorinsights/internal/ingestion"
	"visitorinsights/internal/jobs"
	"visitorinsights/internal/testsupport"
	"visitorinsights/internal/timeframe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingRefresher struct {
	mu    sync.Mutex
	days  []string
	fails map[string]error
}

func newRecordingRefresher() *recordingRefresher {
	return &recordingRefresher{fails: make(map[string]error)}
}

func (r *recordingRefresher) Refresh(_ context.Context, day time.Time, scope analytics.Scope) (*ingestion.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := timeframe.FormatDay(day)
	r.days = append(r.days, d)
	if err := r.fails[d]; err != nil {
		return nil, err
	}
	return &ingestion.Result{Day: d, Scope: scope}, nil
}

func (r *recordingRefresher) Days() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.days...)
}

func (r *recordingRefresher) count(day string) int {
	n := 0
	for _, d := range r.Days() {
		if d == day {
			n++
		}
	}
	return n
}

func TestSchedulerRefreshesToday(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	refresher := newRecordingRefresher()

	scheduler := jobs.NewScheduler(refresher, testsupport.GetLogger(), jobs.Options{
		Enabled:      true,
		BackfillDays: 2,
		Clock:        clock,
	})

	tickerTrap := clock.Trap().NewTicker("scheduler", "refresh")
	defer tickerTrap.Close()

	startErr := make(chan error, 1)
	go func() { startErr <- scheduler.Start() }()

	call := tickerTrap.MustWait(ctx)
	assert.Equal(t, jobs.RefreshInterval, call.Duration)
	call.MustRelease(ctx)
	require.NoError(t, <-startErr)
	assert.True(t, scheduler.IsRunning())

	// Backfill covers the two previous days and today; the refresh job runs
	// once at startup.
	require.Eventually(t, func() bool { return len(refresher.Days()) == 4 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, refresher.count("2024-03-08"))
	assert.Equal(t, 1, refresher.count("2024-03-09"))
	assert.Equal(t, 2, refresher.count("2024-03-10"))

	clock.Advance(jobs.RefreshInterval).MustWait(ctx)
	require.Eventually(t, func() bool { return refresher.count("2024-03-10") == 3 }, 5*time.Second, 10*time.Millisecond)

	scheduler.Stop()
	assert.False(t, scheduler.IsRunning())
}

func TestSchedulerDisabled(t *testing.T) {
	refresher := newRecordingRefresher()
	scheduler := jobs.NewScheduler(refresher, testsupport.GetLogger(), jobs.Options{
		Enabled: false,
		Clock:   quartz.NewMock(t),
	})

	require.NoError(t, scheduler.Start())
	assert.False(t, scheduler.IsRunning())
	scheduler.Stop()
	assert.Empty(t, refresher.Days())
}

func TestBackfill(t *testing.T) {
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC))

	t.Run("continues after a failed day", func(t *testing.T) {
		refresher := newRecordingRefresher()
		refresher.fails["2024-03-08"] = errors.New("API error [503] Service Unavailable")
		scheduler := jobs.NewScheduler(refresher, testsupport.GetLogger(), jobs.Options{BackfillDays: 3, Clock: clock})

		failed := scheduler.Backfill(context.Background())

		assert.Equal(t, 1, failed)
		assert.Equal(t, []string{"2024-03-07", "2024-03-08", "2024-03-09", "2024-03-10"}, refresher.Days())
	})

	t.Run("negative days fall back to the default", func(t *testing.T) {
		refresher := newRecordingRefresher()
		scheduler := jobs.NewScheduler(refresher, testsupport.GetLogger(), jobs.Options{BackfillDays: -1, Clock: clock})

		assert.Zero(t, scheduler.Backfill(context.Background()))
		days := refresher.Days()
		require.Len(t, days, jobs.DefaultBackfillDays+1)
		assert.Equal(t, "2024-03-03", days[0])
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		refresher := newRecordingRefresher()
		scheduler := jobs.NewScheduler(refresher, testsupport.GetLogger(), jobs.Options{BackfillDays: 5, Clock: clock})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Zero(t, scheduler.Backfill(ctx))
		assert.Empty(t, refresher.Days())
	})
}
