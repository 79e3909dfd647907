package scheduler

import (
	"context"

	"github.com/railzwaylabs/subsync/internal/clock"
	"go.uber.org/zap"
)

func (s *Scheduler) SnapshotRetentionJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobSnapshotRetention)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	retentionDays := s.vmmCfg.SnapshotRetentionDays
	if retentionDays <= 0 {
		s.log.Info("snapshot retention disabled", zap.Int("days", retentionDays))
		return nil
	}

	cutoff := clock.Today(ctx, s.clock).AddDate(0, 0, -retentionDays)
	s.log.Info("purging vmm snapshots", zap.Time("cutoff", cutoff))

	deleted, err := s.snapshots.PurgeBefore(ctx, cutoff)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.retention.failed", JobSnapshotRetention, 0, err)
		return err
	}

	s.log.Info("vmm snapshot purge completed", zap.Int64("deleted", deleted))
	run.AddProcessed(int(deleted))
	return nil
}
