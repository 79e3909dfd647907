package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/railzwaylabs/subsync/internal/usage/vmm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrateTimeout = 2 * time.Minute

const uniqueInstanceSKUIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_subscription_instances_customer_sku
	ON subscription_instances (customer_id, sku)
	WHERE sku IS NOT NULL AND sku <> ''`

type Migrator struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   config.Config
}

type Param struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
}

func NewMigrator(p Param) *Migrator {
	return &Migrator{
		db:    p.DB,
		log:   p.Log.Named("migration"),
		clock: p.Clock,
		cfg:   p.Config,
	}
}

// Up brings the schema to the latest version, seeds system data and records
// the applied state. Postgres runs the embedded SQL migrations; other
// dialects are created from the models.
func (m *Migrator) Up(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	man, err := loadManifest(embeddedMigrations, migrationsDir)
	if err != nil {
		return err
	}

	dialect := m.db.Dialector.Name()
	switch dialect {
	case "postgres":
		sqlDB, err := m.db.DB()
		if err != nil {
			return err
		}
		if err := runMigrations(ctx, sqlDB, man); err != nil {
			return err
		}
	default:
		if err := m.autoMigrate(ctx); err != nil {
			return err
		}
	}

	now := m.clock.Now(ctx)
	if err := seedSystemData(ctx, m.db, m.cfg.Reconcile.CloudGroupID, now); err != nil {
		return err
	}
	if err := recordSchemaState(ctx, m.db, SchemaState{
		SchemaVersion: strconv.FormatUint(uint64(man.Latest), 10),
		Checksum:      man.Checksum,
		AppVersion:    m.cfg.App.Version,
		AppliedAt:     now,
	}); err != nil {
		return err
	}

	m.log.Info("schema up to date",
		zap.String("dialect", dialect),
		zap.Uint("version", man.Latest),
		zap.String("checksum", man.Checksum),
	)
	return nil
}

func (m *Migrator) autoMigrate(ctx context.Context) error {
	err := m.db.WithContext(ctx).AutoMigrate(
		&customerdomain.Customer{},
		&customerdomain.Employee{},
		&subscriptiondomain.Group{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Instance{},
		&ledgerdomain.Post{},
		&auditdomain.CustomerLog{},
		&vmm.Snapshot{},
		&SchemaState{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// mysql has no partial indexes; there the scheduler job lock is the only
	// guard against provisioning a SKU twice.
	if m.db.Dialector.Name() == "sqlite" {
		if err := m.db.WithContext(ctx).Exec(uniqueInstanceSKUIndex).Error; err != nil {
			return fmt.Errorf("create instance sku index: %w", err)
		}
	}
	return nil
}

// runMigrations applies the embedded postgres migrations under an advisory
// lock and verifies the resulting version.
func runMigrations(ctx context.Context, db *sql.DB, man manifest) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	unlock, err := acquireAdvisoryLock(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		_ = unlock(context.Background())
	}()

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if _, err := ensureNotDirty(migrator); err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}

	currentVersion, err := ensureNotDirty(migrator)
	if err != nil {
		return err
	}
	if currentVersion != man.Latest {
		return fmt.Errorf("schema version mismatch after migrate: got %d want %d", currentVersion, man.Latest)
	}
	return nil
}

func ensureNotDirty(migrator *migrate.Migrate) (uint, error) {
	version, dirty, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database migrations are dirty at version %d", version)
	}
	return version, nil
}
