package scheduler

import (
	"context"
	"errors"
	"time"

	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	"github.com/railzwaylabs/subsync/internal/ledger/lock"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconcileVMM       = "reconcile_vmm"
	JobReconcileStreamOne = "reconcile_streamone"
	JobCatalogPriceSync   = "catalog_price_sync"
	JobSnapshotRetention  = "vmm_snapshot_retention"
)

// SnapshotPurger removes virtualization snapshots older than a cutoff.
type SnapshotPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

type Scheduler struct {
	log    *zap.Logger
	clock  clock.Clock
	cfg    config.SchedulerConfig
	vmmCfg config.VMMConfig
	locker lock.Locker

	reconcile reconciledomain.Service
	catalog   catalogdomain.Service
	snapshots SnapshotPurger

	all  []job
	jobs []job
}

type Param struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Locker    lock.Locker
	Reconcile reconciledomain.Service
	Catalog   catalogdomain.Service
	Snapshots SnapshotPurger
}

func New(p Param) *Scheduler {
	s := &Scheduler{
		log:    p.Log.Named("scheduler"),
		clock:  p.Clock,
		cfg:    p.Config.Scheduler,
		vmmCfg: p.Config.VMM,
		locker: p.Locker,

		reconcile: p.Reconcile,
		catalog:   p.Catalog,
		snapshots: p.Snapshots,
	}

	s.all = []job{
		{name: JobReconcileVMM, run: s.ReconcileVMMJob},
		{name: JobReconcileStreamOne, run: s.ReconcileStreamOneJob},
		{name: JobCatalogPriceSync, run: s.CatalogPriceSyncJob},
		{name: JobSnapshotRetention, run: s.SnapshotRetentionJob},
	}
	for _, j := range s.all {
		if s.cfg.JobEnabled(j.name) {
			s.jobs = append(s.jobs, j)
		}
	}
	return s
}

// RunForever runs every enabled job now and then once per interval until
// ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) error {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Strings("jobs", names))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every enabled job in order. A failing job is logged and the
// next one still runs.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, j)
	}
}

// Run executes a single job by name regardless of the enabled list.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	for _, j := range s.all {
		if j.name == name {
			return s.runJob(ctx, j)
		}
	}
	return ErrUnknownJob
}

func (s *Scheduler) runJob(ctx context.Context, j job) error {
	timeout := s.cfg.JobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	unlock, err := s.locker.Acquire(ctx, JobLockKey(j.name), timeout)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.log.Info("job already running elsewhere", zap.String("job", j.name))
			return nil
		}
		s.log.Error("job lock failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.log.Warn("job unlock failed", zap.String("job", j.name), zap.Error(err))
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := j.run(jobCtx); err != nil {
		s.log.Error("job failed", zap.String("job", j.name), zap.Error(err))
		return err
	}
	return nil
}
