package migration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSchemaOutdated = errors.New("schema_outdated")

// SchemaState is the single row recording which schema the database runs.
type SchemaState struct {
	ID            int       `gorm:"primaryKey;autoIncrement:false"`
	SchemaVersion string    `gorm:"column:schema_version;type:varchar(32);not null"`
	Checksum      string    `gorm:"type:varchar(64)"`
	AppVersion    string    `gorm:"column:app_version;type:varchar(64)"`
	AppliedAt     time.Time `gorm:"column:applied_at;not null"`
}

func (SchemaState) TableName() string { return "schema_state" }

func recordSchemaState(ctx context.Context, db *gorm.DB, state SchemaState) error {
	state.ID = 1
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"schema_version", "checksum", "app_version", "applied_at"}),
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("record schema state: %w", err)
	}
	return nil
}

// CurrentState returns the recorded schema state, or nil before the first
// migration.
func CurrentState(ctx context.Context, db *gorm.DB) (*SchemaState, error) {
	if !db.Migrator().HasTable(&SchemaState{}) {
		return nil, nil
	}
	var state SchemaState
	if err := db.WithContext(ctx).Where("id = ?", 1).Limit(1).Find(&state).Error; err != nil {
		return nil, err
	}
	if state.ID == 0 {
		return nil, nil
	}
	return &state, nil
}

// EnforceSchemaGate refuses to start a process against a database that was
// not migrated to the embedded schema version.
func EnforceSchemaGate(ctx context.Context, db *gorm.DB) error {
	man, err := loadManifest(embeddedMigrations, migrationsDir)
	if err != nil {
		return err
	}
	state, err := CurrentState(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("%w: database was never migrated, run `subsync migrate`", ErrSchemaOutdated)
	}
	want := strconv.FormatUint(uint64(man.Latest), 10)
	if state.SchemaVersion != want {
		return fmt.Errorf("%w: database at version %s, binary expects %s", ErrSchemaOutdated, state.SchemaVersion, want)
	}
	if state.Checksum != man.Checksum {
		return fmt.Errorf("%w: migration checksum differs from the one applied", ErrSchemaOutdated)
	}
	return nil
}
