package jobs

import (
	"context"
	"log/slog"
	"time"
)

// EventPruner deletes analytics events older than a cutoff.
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CounterPurger deletes expired rate counters.
type CounterPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RetentionJob removes CTA events past the retention period.
type RetentionJob struct {
	events        EventPruner
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

func NewRetentionJob(events EventPruner, retentionDays int, logger *slog.Logger) *RetentionJob {
	return &RetentionJob{events: events, retentionDays: retentionDays, logger: logger, now: time.Now}
}

// Run deletes old events. A non-positive retention keeps everything.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		j.logger.Debug("Event retention disabled")
		return nil
	}

	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)
	j.logger.Info("Starting cleanup of old CTA events",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoff))

	deleted, err := j.events.DeleteOlderThan(ctx, cutoff, 1000)
	if err != nil {
		j.logger.Error("Failed to delete old CTA events",
			slog.Any("error", err),
			slog.Int64("deleted_so_far", deleted))
		return err
	}

	j.logger.Info("Cleaned up old CTA events",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.retentionDays))
	return nil
}

// CounterPurgeJob drops rate counters whose window closed. Only the SQLite
// counter store needs it; Redis expires keys itself.
type CounterPurgeJob struct {
	counters CounterPurger
	logger   *slog.Logger
}

func NewCounterPurgeJob(counters CounterPurger, logger *slog.Logger) *CounterPurgeJob {
	return &CounterPurgeJob{counters: counters, logger: logger}
}

func (j *CounterPurgeJob) Run(ctx context.Context) error {
	deleted, err := j.counters.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.logger.Debug("Purged expired rate counters", slog.Int64("deleted_count", deleted))
	}
	return nil
}
