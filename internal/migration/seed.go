package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type groupSeed struct {
	ID   snowflake.ID
	Name string
}

// seedSystemData inserts the subscription groups auto-provisioning depends
// on. Existing rows are left untouched.
func seedSystemData(ctx context.Context, db *gorm.DB, cloudGroupID int64, now time.Time) error {
	seeds := []groupSeed{
		{ID: snowflake.ID(cloudGroupID), Name: "Cloud Subscriptions"},
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range seeds {
			if seed.ID == 0 {
				continue
			}
			group := subscriptiondomain.Group{ID: seed.ID, Name: seed.Name, CreatedAt: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&group).Error; err != nil {
				return fmt.Errorf("seed subscription group %s: %w", seed.Name, err)
			}
		}
		return nil
	})
}
