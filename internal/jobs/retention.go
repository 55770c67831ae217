package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"gorm.io/gorm"

	"visitorinsights/internal/visitors"
)

// RetentionInterval is how often the retention job runs.
const RetentionInterval = 24 * time.Hour

const retentionBatchSize = 1000

// RetentionJob prunes visitor records older than the retention period.
// Rollups are never pruned.
type RetentionJob struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  quartz.Clock
	days   int

	// pause between batches so request handlers get the database
	pause time.Duration
}

func NewRetentionJob(db *gorm.DB, logger *slog.Logger, clock quartz.Clock, days int) *RetentionJob {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &RetentionJob{
		db:     db,
		logger: logger,
		clock:  clock,
		days:   days,
		pause:  100 * time.Millisecond,
	}
}

// Enabled reports whether a retention period is configured.
func (j *RetentionJob) Enabled() bool {
	return j != nil && j.days > 0
}

// Run removes visitor records detected before the retention cutoff, in
// batches, and returns how many were deleted.
func (j *RetentionJob) Run(ctx context.Context) (int64, error) {
	if !j.Enabled() {
		return 0, nil
	}

	cutoff := j.clock.Now().UTC().AddDate(0, 0, -j.days)
	j.logger.Info("Starting cleanup of old visitor records",
		slog.Int("retention_days", j.days),
		slog.Time("cutoff_date", cutoff))

	var totalDeleted int64
	for {
		deleted, err := visitors.DeleteBefore(j.db.WithContext(ctx), cutoff, retentionBatchSize)
		if err != nil {
			j.logger.Error("Failed to delete old visitor records",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return totalDeleted, err
		}
		totalDeleted += deleted

		if deleted < retentionBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		case <-time.After(j.pause):
		}
	}

	if totalDeleted == 0 {
		j.logger.Debug("No old visitor records to clean up")
		return 0, nil
	}

	j.logger.Info("Cleaned up old visitor records",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", j.days))
	return totalDeleted, nil
}
