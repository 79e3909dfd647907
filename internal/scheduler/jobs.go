package scheduler

import (
	"context"

	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
)

// JobLockKey is the locker key held while a job runs. Manual runs of the
// same work take it too.
func JobLockKey(name string) string {
	return "job:" + name
}

// ReconcileJob names the job that reconciles kind.
func ReconcileJob(kind usagedomain.SourceKind) (string, bool) {
	switch kind {
	case usagedomain.SourceVMM:
		return JobReconcileVMM, true
	case usagedomain.SourceStreamOne:
		return JobReconcileStreamOne, true
	}
	return "", false
}

func (s *Scheduler) ReconcileVMMJob(ctx context.Context) error {
	return s.reconcileJob(ctx, JobReconcileVMM, usagedomain.SourceVMM)
}

func (s *Scheduler) ReconcileStreamOneJob(ctx context.Context) error {
	return s.reconcileJob(ctx, JobReconcileStreamOne, usagedomain.SourceStreamOne)
}

func (s *Scheduler) reconcileJob(ctx context.Context, name string, kind usagedomain.SourceKind) error {
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	summary, err := s.reconcile.Run(ctx, kind)
	run.AddProcessed(summary.Customers - summary.Skipped)
	run.AddFailed(summary.Skipped)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", name, summary.Customers, err)
		return err
	}
	return nil
}

func (s *Scheduler) CatalogPriceSyncJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobCatalogPriceSync)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	result, err := s.catalog.SyncPrices(ctx)
	run.AddProcessed(result.Checked - result.Failed)
	run.AddFailed(result.Failed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.catalog.failed", JobCatalogPriceSync, result.Checked, err)
		return err
	}
	return nil
}
