package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/railzwaylabs/subsync/internal/audit"
	"github.com/railzwaylabs/subsync/internal/catalog"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	"github.com/railzwaylabs/subsync/internal/customer"
	"github.com/railzwaylabs/subsync/internal/eligibility"
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
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const dateLayout = "2006-01-02"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "subsync",
		Short:         "Subscription reconciliation engine",
		Version:       readVersionFromEnv(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("as-of", "", "evaluate as of this day (YYYY-MM-DD) instead of today")
	root.AddCommand(
		newMigrateCmd(),
		newReconcileCmd(),
		newEligibilityCmd(),
		newSyncCatalogCmd(),
		newSchedulerCmd(),
		newAuditExportCmd(),
	)
	return root
}

// coreModules wires everything a reconciliation or eligibility run needs.
func coreModules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		fx.Invoke(migration.RegisterSchemaGate),
		customer.Module,
		subscription.Module,
		ledger.Module,
		audit.Module,
		usage.Module,
		catalog.Module,
		notification.Module,
		reconcile.Module,
		eligibility.Module,
	)
}

// runOnce starts a short-lived app, hands the populated targets to fn and
// stops the app afterwards.
func runOnce(cmd *cobra.Command, opts fx.Option, fn func(ctx context.Context) error) error {
	app := fx.New(opts, fx.NopLogger)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	ctx, err := withAsOf(cmd)
	if err != nil {
		return err
	}
	return fn(ctx)
}

func withAsOf(cmd *cobra.Command) (context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	raw, _ := cmd.Flags().GetString("as-of")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ctx, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --as-of %q: %w", raw, err)
	}
	return clock.WithAsOf(ctx, day), nil
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.App.NodeID)
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func schedulerModules() fx.Option {
	return fx.Options(
		coreModules(),
		scheduler.Module,
		server.Module,
	)
}
