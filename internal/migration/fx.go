package migration

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Provide(NewMigrator),
)

// RegisterSchemaGate fails application start when the schema is behind.
func RegisterSchemaGate(lc fx.Lifecycle, db *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return EnforceSchemaGate(ctx, db)
		},
	})
}
