package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	eligibilitydomain "github.com/railzwaylabs/subsync/internal/eligibility/domain"
	"github.com/railzwaylabs/subsync/internal/ledger/lock"
	"github.com/railzwaylabs/subsync/internal/migration"
	"github.com/railzwaylabs/subsync/internal/observability"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	"github.com/railzwaylabs/subsync/internal/scheduler"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/railzwaylabs/subsync/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and seed system data",
		RunE: func(cmd *cobra.Command, args []string) error {
			var m *migration.Migrator
			opts := fx.Options(
				config.Module,
				observability.Module,
				db.Module,
				clock.Module,
				migration.Module,
				fx.Populate(&m),
			)
			return runOnce(cmd, opts, func(ctx context.Context) error {
				return m.Up(ctx)
			})
		},
	}
}

// sourcesFor expands the --source flag into the sources to run, in order.
func sourcesFor(raw string) ([]usagedomain.SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "all", "":
		return []usagedomain.SourceKind{usagedomain.SourceVMM, usagedomain.SourceStreamOne}, nil
	case string(usagedomain.SourceVMM):
		return []usagedomain.SourceKind{usagedomain.SourceVMM}, nil
	case string(usagedomain.SourceStreamOne):
		return []usagedomain.SourceKind{usagedomain.SourceStreamOne}, nil
	default:
		return nil, fmt.Errorf("%w: %s", reconciledomain.ErrUnknownSource, raw)
	}
}

func newReconcileCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile subscription instances against usage sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := sourcesFor(source)
			if err != nil {
				return err
			}
			var (
				svc    reconciledomain.Service
				locker lock.Locker
				cfg    config.Config
			)
			opts := fx.Options(coreModules(), fx.Populate(&svc, &locker, &cfg))
			return runOnce(cmd, opts, func(ctx context.Context) error {
				return runReconcile(ctx, cmd.OutOrStdout(), svc, locker, kinds, cfg.Scheduler.JobTimeout)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "all", "usage source to reconcile: vmm, streamone or all")
	return cmd
}

// runReconcile holds the scheduler's job lock for each source so a manual
// run never overlaps a scheduled one.
func runReconcile(ctx context.Context, out io.Writer, svc reconciledomain.Service, locker lock.Locker, kinds []usagedomain.SourceKind, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	for _, kind := range kinds {
		job, ok := scheduler.ReconcileJob(kind)
		if !ok {
			return fmt.Errorf("%w: %s", reconciledomain.ErrUnknownSource, kind)
		}
		unlock, err := locker.Acquire(ctx, scheduler.JobLockKey(job), ttl)
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				return fmt.Errorf("%s reconciliation is already running: %w", kind, err)
			}
			return err
		}

		summary, err := svc.Run(ctx, kind)
		_ = unlock(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s run %s: %d customers, %d skipped, %d changes, %d errors\n",
			summary.Source, summary.RunID, summary.Customers, summary.Skipped, summary.Changes, summary.Errors)
	}
	return nil
}

func newEligibilityCmd() *cobra.Command {
	var (
		customerID string
		mark       bool
	)
	cmd := &cobra.Command{
		Use:   "eligibility",
		Short: "List a customer's invoiceable subscription instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snowflake.ParseString(strings.TrimSpace(customerID))
			if err != nil {
				return fmt.Errorf("invalid --customer %q: %w", customerID, err)
			}
			var svc eligibilitydomain.Service
			return runOnce(cmd, fx.Options(coreModules(), fx.Populate(&svc)), func(ctx context.Context) error {
				groups, err := svc.Eligible(ctx, id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(groups); err != nil {
					return err
				}
				if !mark {
					return nil
				}
				n, err := svc.MarkInvoiced(ctx, groups)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "marked %d instances invoiced\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&customerID, "customer", "", "customer id")
	cmd.Flags().BoolVar(&mark, "mark-invoiced", false, "stamp the listed posts as invoiced")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func newSyncCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-catalog",
		Short: "Refresh unit prices of provider-backed subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc catalogdomain.Service
			return runOnce(cmd, fx.Options(coreModules(), fx.Populate(&svc)), func(ctx context.Context) error {
				res, err := svc.SyncPrices(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checked %d, updated %d, failed %d\n", res.Checked, res.Updated, res.Failed)
				return nil
			})
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	var job string
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run scheduled jobs with the health and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if job != "" {
				var s *scheduler.Scheduler
				opts := fx.Options(coreModules(), scheduler.Module, fx.Populate(&s))
				return runOnce(cmd, opts, func(ctx context.Context) error {
					return s.Run(ctx, job)
				})
			}
			fx.New(schedulerModules(), fx.Invoke(startScheduler)).Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "run a single job once and exit")
	return cmd
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
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

func newAuditExportCmd() *cobra.Command {
	var (
		from, to, format, customerID, kinds, out string
	)
	cmd := &cobra.Command{
		Use:   "audit-export",
		Short: "Export customer change logs as csv or json",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := exportRequest(from, to, format, customerID, kinds)
			if err != nil {
				return err
			}
			var svc auditdomain.ExportService
			return runOnce(cmd, fx.Options(coreModules(), fx.Populate(&svc)), func(ctx context.Context) error {
				res, err := svc.Export(ctx, req)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(res.Data)
				} else {
					err = os.WriteFile(out, res.Data, 0o644)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records, sha256 %s\n", res.Count, res.Checksum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to export (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to export, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&format, "format", "csv", "csv or json")
	cmd.Flags().StringVar(&customerID, "customer", "", "restrict to one customer id")
	cmd.Flags().StringVar(&kinds, "kinds", "", "comma separated log kinds")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func exportRequest(from, to, format, customerID, kinds string) (auditdomain.ExportRequest, error) {
	start, err := time.Parse(dateLayout, strings.TrimSpace(from))
	if err != nil {
		return auditdomain.ExportRequest{}, fmt.Errorf("invalid --from: %w", err)
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(to))
	if err != nil {
		return auditdomain.ExportRequest{}, fmt.Errorf("invalid --to: %w", err)
	}
	end = end.AddDate(0, 0, 1)
	if !end.After(start) {
		return auditdomain.ExportRequest{}, fmt.Errorf("--to must not be before --from")
	}

	req := auditdomain.ExportRequest{
		StartDate: start,
		EndDate:   end,
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		req.Format = auditdomain.ExportFormatCSV
	case "json":
		req.Format = auditdomain.ExportFormatJSON
	default:
		return auditdomain.ExportRequest{}, fmt.Errorf("%w: %s", auditdomain.ErrUnsupportedFormat, format)
	}
	if s := strings.TrimSpace(customerID); s != "" {
		id, err := snowflake.ParseString(s)
		if err != nil {
			return auditdomain.ExportRequest{}, fmt.Errorf("invalid --customer: %w", err)
		}
		req.CustomerID = &id
	}
	for _, k := range strings.Split(kinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			req.Kinds = append(req.Kinds, auditdomain.Kind(k))
		}
	}
	return req, nil
}
