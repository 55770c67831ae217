package jobs_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorinsights/internal/jobs"
	"visitorinsights/internal/testsupport"
	"visitorinsights/internal/visitors"
)

func TestRetentionJob(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := quartz.NewMock(t)
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	clock.Set(now)

	var records []visitors.Record
	for i := 0; i < 10; i++ {
		ts := now.AddDate(0, 0, -i*10)
		records = append(records, visitors.Record{VisitorID: fmt.Sprintf("r-%d", i), Timestamp: &ts})
	}
	require.NoError(t, visitors.InsertMany(db, records))

	t.Run("disabled job deletes nothing", func(t *testing.T) {
		job := jobs.NewRetentionJob(db, testsupport.GetLogger(), clock, 0)
		assert.False(t, job.Enabled())

		deleted, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("removes records older than the period", func(t *testing.T) {
		job := jobs.NewRetentionJob(db, testsupport.GetLogger(), clock, 45)

		deleted, err := job.Run(context.Background())
		require.NoError(t, err)
		// Records 50 to 90 days old.
		assert.Equal(t, int64(5), deleted)

		n, err := visitors.Count(db)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("running again is a no-op", func(t *testing.T) {
		job := jobs.NewRetentionJob(db, testsupport.GetLogger(), clock, 45)
		deleted, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}
