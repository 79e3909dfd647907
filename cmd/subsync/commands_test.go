package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	"github.com/railzwaylabs/subsync/internal/ledger/lock"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	"github.com/railzwaylabs/subsync/internal/scheduler"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcesFor(t *testing.T) {
	kinds, err := sourcesFor("all")
	require.NoError(t, err)
	assert.Equal(t, []usagedomain.SourceKind{usagedomain.SourceVMM, usagedomain.SourceStreamOne}, kinds)

	kinds, err = sourcesFor("StreamOne")
	require.NoError(t, err)
	assert.Equal(t, []usagedomain.SourceKind{usagedomain.SourceStreamOne}, kinds)

	_, err = sourcesFor("azure")
	assert.ErrorIs(t, err, reconciledomain.ErrUnknownSource)
}

func TestExportRequest(t *testing.T) {
	req, err := exportRequest("2024-01-01", "2024-01-31", "JSON", "42", "quantity_changed, instance_inactivated")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), req.StartDate)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), req.EndDate)
	assert.Equal(t, auditdomain.ExportFormatJSON, req.Format)
	require.NotNil(t, req.CustomerID)
	assert.Equal(t, int64(42), req.CustomerID.Int64())
	assert.Equal(t, []auditdomain.Kind{auditdomain.KindQuantityChanged, auditdomain.KindInstanceInactivated}, req.Kinds)

	_, err = exportRequest("2024-01-01", "2024-01-31", "xml", "", "")
	assert.ErrorIs(t, err, auditdomain.ErrUnsupportedFormat)

	_, err = exportRequest("2024-02-01", "2024-01-01", "csv", "", "")
	assert.Error(t, err)

	_, err = exportRequest("yesterday", "2024-01-01", "csv", "", "")
	assert.Error(t, err)
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "reconcile", "eligibility", "sync-catalog", "scheduler", "audit-export"} {
		assert.True(t, names[want], want)
	}
}

type fakeReconciler struct {
	runs []usagedomain.SourceKind
}

func (f *fakeReconciler) Run(ctx context.Context, kind usagedomain.SourceKind) (reconciledomain.RunSummary, error) {
	f.runs = append(f.runs, kind)
	return reconciledomain.RunSummary{RunID: "r1", Source: kind, Customers: 3, Changes: 2}, nil
}

func (f *fakeReconciler) ReconcileCustomer(ctx context.Context, customer customerdomain.Customer, source usagedomain.Source, log reconciledomain.CustomerLog) reconciledomain.CustomerLog {
	return log
}

func TestRunReconcile_PrintsSummaryAndReleasesLock(t *testing.T) {
	svc := &fakeReconciler{}
	locker := lock.NewLocal()
	var out bytes.Buffer

	err := runReconcile(context.Background(), &out, svc, locker, []usagedomain.SourceKind{usagedomain.SourceStreamOne}, 0)
	require.NoError(t, err)
	assert.Equal(t, []usagedomain.SourceKind{usagedomain.SourceStreamOne}, svc.runs)
	assert.Equal(t, "streamone run r1: 3 customers, 0 skipped, 2 changes, 0 errors\n", out.String())

	unlock, err := locker.Acquire(context.Background(), scheduler.JobLockKey(scheduler.JobReconcileStreamOne), time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}

func TestRunReconcile_SkipsWhileScheduledJobHoldsLock(t *testing.T) {
	svc := &fakeReconciler{}
	locker := lock.NewLocal()
	unlock, err := locker.Acquire(context.Background(), scheduler.JobLockKey(scheduler.JobReconcileVMM), time.Minute)
	require.NoError(t, err)
	defer func() { _ = unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	err = runReconcile(ctx, &out, svc, locker, []usagedomain.SourceKind{usagedomain.SourceVMM}, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.Contains(t, err.Error(), "already running")
	assert.Empty(t, svc.runs)
	assert.Empty(t, out.String())
}
