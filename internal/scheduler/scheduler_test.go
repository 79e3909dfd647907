package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	"github.com/railzwaylabs/subsync/internal/ledger/lock"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReconcile struct {
	mu   sync.Mutex
	runs []usagedomain.SourceKind
	err  error
}

func (f *fakeReconcile) Run(_ context.Context, kind usagedomain.SourceKind) (reconciledomain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, kind)
	return reconciledomain.RunSummary{Source: kind, Customers: 3, Skipped: 1}, f.err
}

func (f *fakeReconcile) ReconcileCustomer(_ context.Context, _ customerdomain.Customer, _ usagedomain.Source, log reconciledomain.CustomerLog) reconciledomain.CustomerLog {
	return log
}

type fakeCatalog struct {
	syncs int
}

func (f *fakeCatalog) EnsureSubscription(context.Context, string) (subscriptiondomain.Subscription, bool, error) {
	return subscriptiondomain.Subscription{}, false, nil
}

func (f *fakeCatalog) SyncPrices(context.Context) (catalogdomain.SyncResult, error) {
	f.syncs++
	return catalogdomain.SyncResult{Checked: 4, Updated: 1}, nil
}

type fakePurger struct {
	cutoff time.Time
	calls  int
}

func (f *fakePurger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	return 7, nil
}

func newTestScheduler(jobs []string, rec *fakeReconcile, cat *fakeCatalog, purger *fakePurger, locker lock.Locker) *Scheduler {
	cfg := config.Config{
		Scheduler: config.SchedulerConfig{Interval: 10 * time.Millisecond, Jobs: jobs, JobTimeout: time.Second},
		VMM:       config.VMMConfig{SnapshotRetentionDays: 90},
	}
	return New(Param{
		Log:       zap.NewNop(),
		Clock:     clock.Fixed{At: time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)},
		Config:    cfg,
		Locker:    locker,
		Reconcile: rec,
		Catalog:   cat,
		Snapshots: purger,
	})
}

func TestRunOnce_RunsEnabledJobsOnly(t *testing.T) {
	rec := &fakeReconcile{}
	cat := &fakeCatalog{}
	purger := &fakePurger{}
	s := newTestScheduler([]string{JobReconcileStreamOne, JobSnapshotRetention}, rec, cat, purger, lock.NewLocal())

	s.RunOnce(context.Background())

	assert.Equal(t, []usagedomain.SourceKind{usagedomain.SourceStreamOne}, rec.runs)
	assert.Equal(t, 0, cat.syncs)
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), purger.cutoff)
}

func TestRunOnce_FailingJobDoesNotStopOthers(t *testing.T) {
	rec := &fakeReconcile{err: errors.New("db down")}
	cat := &fakeCatalog{}
	s := newTestScheduler([]string{JobReconcileVMM, JobReconcileStreamOne, JobCatalogPriceSync}, rec, cat, &fakePurger{}, lock.NewLocal())

	s.RunOnce(context.Background())

	assert.Len(t, rec.runs, 2)
	assert.Equal(t, 1, cat.syncs)
}

func TestRun_ByName(t *testing.T) {
	cat := &fakeCatalog{}
	s := newTestScheduler(nil, &fakeReconcile{}, cat, &fakePurger{}, lock.NewLocal())

	require.NoError(t, s.Run(context.Background(), JobCatalogPriceSync))
	assert.Equal(t, 1, cat.syncs)
	assert.ErrorIs(t, s.Run(context.Background(), "nope"), ErrUnknownJob)
}

func TestRunJob_SkipsWhenLockHeld(t *testing.T) {
	locker := lock.NewLocal()
	rec := &fakeReconcile{}
	s := newTestScheduler([]string{JobReconcileVMM}, rec, &fakeCatalog{}, &fakePurger{}, locker)

	unlock, err := locker.Acquire(context.Background(), JobLockKey(JobReconcileVMM), time.Minute)
	require.NoError(t, err)
	defer unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx, JobReconcileVMM)
	assert.Empty(t, rec.runs)
}

func TestRunForever_StopsOnCancel(t *testing.T) {
	rec := &fakeReconcile{}
	s := newTestScheduler([]string{JobReconcileVMM}, rec, &fakeCatalog{}, &fakePurger{}, lock.NewLocal())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunForever(ctx) }()

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.runs) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestEnsureJobRun_NestedRunIsNotOwned(t *testing.T) {
	s := newTestScheduler(nil, &fakeReconcile{}, &fakeCatalog{}, &fakePurger{}, lock.NewLocal())

	ctx, run, owner := s.ensureJobRun(context.Background(), "outer")
	require.True(t, owner)
	_, inner, owner := s.ensureJobRun(ctx, "inner")
	assert.False(t, owner)
	assert.Same(t, run, inner)
}

func TestReconcileJob(t *testing.T) {
	name, ok := ReconcileJob(usagedomain.SourceVMM)
	assert.True(t, ok)
	assert.Equal(t, JobReconcileVMM, name)

	name, ok = ReconcileJob(usagedomain.SourceStreamOne)
	assert.True(t, ok)
	assert.Equal(t, "job:"+JobReconcileStreamOne, JobLockKey(name))

	_, ok = ReconcileJob("atera")
	assert.False(t, ok)
}
