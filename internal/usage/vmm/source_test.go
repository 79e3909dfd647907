package vmm

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Snapshot{}))
	return db
}

func snapshot(id int64, label string, date time.Time, vms, cpus, mem, storage int64) Snapshot {
	return Snapshot{
		ID:           snowflake.ID(id),
		CloudLabel:   label,
		SnapshotDate: date,
		VMCount:      decimal.NewFromInt(vms),
		CPUCount:     decimal.NewFromInt(cpus),
		MemoryGB:     decimal.NewFromInt(mem),
		StorageGB:    decimal.NewFromInt(storage),
	}
}

func byKey(qs []usagedomain.Quantity) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, q := range qs {
		out[q.ResourceKey] = q.Quantity
	}
	return out
}

func TestParseCloudLabel(t *testing.T) {
	name, ref, err := ParseCloudLabel("Acme Industries AS (1001)")
	require.NoError(t, err)
	assert.Equal(t, "Acme Industries AS", name)
	assert.Equal(t, "1001", ref)

	name, ref, err = ParseCloudLabel("Globex (Norway) (G-77)")
	require.NoError(t, err)
	assert.Equal(t, "Globex (Norway)", name)
	assert.Equal(t, "G-77", ref)

	for _, bad := range []string{"Acme", "(1001)", "Acme (10 01)", "Acme 1001)"} {
		_, _, err := ParseCloudLabel(bad)
		assert.ErrorIs(t, err, usagedomain.ErrSchemaMismatch, bad)
	}
}

func TestSource_UsesLatestSnapshotOnly(t *testing.T) {
	db := setupDB(t)
	older := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create([]Snapshot{
		snapshot(1, "Acme (1001)", older, 3, 6, 12, 100),
		snapshot(2, "Acme (1001)", latest, 5, 10, 32, 250),
		snapshot(3, "Globex (1002)", latest, 1, 2, 4, 40),
		snapshot(4, "Initech (10010)", latest, 9, 9, 9, 9),
	}).Error)

	src := NewSource(db, zap.NewNop())
	qs, err := src.ListQuantities(context.Background(), "1001")
	require.NoError(t, err)
	require.Len(t, qs, 4)

	got := byKey(qs)
	assert.True(t, decimal.NewFromInt(5).Equal(got[ResourceVMCount]))
	assert.True(t, decimal.NewFromInt(10).Equal(got[ResourceCPUCount]))
	assert.True(t, decimal.NewFromInt(32).Equal(got[ResourceMemoryGB]))
	assert.True(t, decimal.NewFromInt(250).Equal(got[ResourceStorageGB]))
	assert.Equal(t, "Acme", qs[0].Name)
	assert.Equal(t, usagedomain.StatusUnknown, qs[0].Status)
}

func TestSource_UnknownCustomerReturnsNothing(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create(&[]Snapshot{
		snapshot(1, "Acme (1001)", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 1, 1, 1, 1),
	}).Error)

	qs, err := NewSource(db, zap.NewNop()).ListQuantities(context.Background(), "9999")
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestSource_EmptyFeed(t *testing.T) {
	db := setupDB(t)
	qs, err := NewSource(db, zap.NewNop()).ListQuantities(context.Background(), "1001")
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestSource_PurgeBefore(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Create([]Snapshot{
		snapshot(1, "Acme (1001)", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 1, 1, 1, 1),
		snapshot(2, "Acme (1001)", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), 1, 1, 1, 1),
	}).Error)

	deleted, err := NewSource(db, zap.NewNop()).PurgeBefore(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
