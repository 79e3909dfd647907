package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/subsync/internal/audit"
	"github.com/railzwaylabs/subsync/internal/catalog"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	"github.com/railzwaylabs/subsync/internal/customer"
	"github.com/railzwaylabs/subsync/internal/ledger"
	"github.com/railzwaylabs/subsync/internal/migration"
	"github.com/railzwaylabs/subsync/internal/notification"
	"github.com/railzwaylabs/subsync/internal/observability"
	"github.com/railzwaylabs/subsync/internal/reconcile"
	"github.com/railzwaylabs/subsync/internal/redis"
	"github.com/railzwaylabs/subsync/internal/scheduler"
	"github.com/railzwaylabs/subsync/internal/server"
	"github.com/railzwaylabs/subsync/internal/subscription"
	"github.com/railzwaylabs/subsync/internal/usage"
	"github.com/railzwaylabs/subsync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		fx.Invoke(migration.RegisterSchemaGate),

		// Domain services required by scheduler
		customer.Module,
		subscription.Module,
		ledger.Module,
		audit.Module,
		usage.Module,
		catalog.Module,
		notification.Module,
		reconcile.Module,
		scheduler.Module,

		// Health and metrics only
		server.Module,
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.App.NodeID)
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() { _ = s.RunForever(ctx) }()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
