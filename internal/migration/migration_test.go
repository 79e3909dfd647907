package migration

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestEmbeddedManifest(t *testing.T) {
	man, err := loadManifest(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), man.Latest)
	assert.Equal(t, []string{"000001_init.up.sql", "000002_unique_instance_sku.up.sql"}, man.Files)
	assert.Len(t, man.Checksum, 64)
}

func TestLoadManifest(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_b.up.sql":   {Data: []byte("B")},
		"m/000001_a.up.sql":   {Data: []byte("A")},
		"m/000001_a.down.sql": {Data: []byte("drop")},
	}
	man, err := loadManifest(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, uint(2), man.Latest)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, man.Files)

	fsys["m/000002_b.up.sql"] = &fstest.MapFile{Data: []byte("B2")}
	changed, err := loadManifest(fsys, "m")
	require.NoError(t, err)
	assert.NotEqual(t, man.Checksum, changed.Checksum)

	_, err = loadManifest(fstest.MapFS{"m/bad.up.sql": {Data: []byte("x")}}, "m")
	assert.Error(t, err)

	_, err = loadManifest(fstest.MapFS{"m/README": {Data: []byte("x")}}, "m")
	assert.Error(t, err)
}

func TestParseMigrationVersion(t *testing.T) {
	v, ok := parseMigrationVersion("000042_add_things.up.sql")
	assert.True(t, ok)
	assert.Equal(t, uint(42), v)

	_, ok = parseMigrationVersion("noversion.up.sql")
	assert.False(t, ok)
	_, ok = parseMigrationVersion("_x.up.sql")
	assert.False(t, ok)
}

func TestMigratorUp_AutoMigrateAndSeed(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	cfg := config.Config{
		App:       config.AppConfig{Version: "1.2.3"},
		Reconcile: config.ReconcileConfig{CloudGroupID: 13},
	}
	m := NewMigrator(Param{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.Fixed{At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Config: cfg,
	})

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx))

	assert.True(t, db.Migrator().HasTable(&ledgerdomain.Post{}))

	var groups []subscriptiondomain.Group
	require.NoError(t, db.Find(&groups).Error)
	require.Len(t, groups, 1)
	assert.Equal(t, "Cloud Subscriptions", groups[0].Name)

	state, err := CurrentState(ctx, db)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "2", state.SchemaVersion)
	assert.Equal(t, "1.2.3", state.AppVersion)
}

func TestEnforceSchemaGate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	err = EnforceSchemaGate(ctx, db)
	assert.ErrorIs(t, err, ErrSchemaOutdated)

	m := NewMigrator(Param{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.Fixed{At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Config: config.Config{},
	})
	require.NoError(t, m.Up(ctx))
	require.NoError(t, EnforceSchemaGate(ctx, db))

	require.NoError(t, db.Model(&SchemaState{}).Where("id = ?", 1).Update("schema_version", "0").Error)
	assert.ErrorIs(t, EnforceSchemaGate(ctx, db), ErrSchemaOutdated)
}

func TestMigratorUp_OneInstancePerCustomerSKU(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	m := NewMigrator(Param{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.Fixed{At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Config: config.Config{},
	})
	require.NoError(t, m.Up(context.Background()))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	instance := func(id snowflake.ID, customer snowflake.ID, sku string) error {
		return db.Create(&subscriptiondomain.Instance{
			ID: id, SubscriptionID: 1, CustomerID: customer, SKU: sku, CreatedAt: now, UpdatedAt: now,
		}).Error
	}

	require.NoError(t, instance(1, 100, "SKU-E3"))
	assert.Error(t, instance(2, 100, "SKU-E3"))
	require.NoError(t, instance(3, 200, "SKU-E3"))

	// instances without a SKU are not constrained
	require.NoError(t, instance(4, 100, ""))
	require.NoError(t, instance(5, 100, ""))
}
