package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	reconciledomain "github.com/railzwaylabs/subsync/internal/reconcile/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock    clock.Clock
	cfg      config.ReconcileConfig
	customer customerdomain.Repository
	subs     subscriptiondomain.Repository
	store    ledgerdomain.Store
	catalog  catalogdomain.Service
	audit    auditdomain.Service
	notifier reconciledomain.Notifier
	sources  map[usagedomain.SourceKind]usagedomain.Source
	tracer   trace.Tracer
	metrics  *metrics
}

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Config         config.Config
	CustomerRepo   customerdomain.Repository
	SubRepo        subscriptiondomain.Repository
	Store          ledgerdomain.Store
	Catalog        catalogdomain.Service
	Audit          auditdomain.Service
	Notifier       reconciledomain.Notifier
	Sources        []usagedomain.Source `group:"usage_sources"`
	TracerProvider trace.TracerProvider
	Registerer     prometheus.Registerer `optional:"true"`
}

func NewService(p ServiceParam) reconciledomain.Service {
	sources := make(map[usagedomain.SourceKind]usagedomain.Source, len(p.Sources))
	for _, src := range p.Sources {
		sources[src.Kind()] = src
	}

	return &Service{
		db:  p.DB,
		log: p.Log.Named("reconcile.service"),

		clock:    p.Clock,
		cfg:      p.Config.Reconcile,
		customer: p.CustomerRepo,
		subs:     p.SubRepo,
		store:    p.Store,
		catalog:  p.Catalog,
		audit:    p.Audit,
		notifier: p.Notifier,
		sources:  sources,
		tracer:   p.TracerProvider.Tracer("github.com/railzwaylabs/subsync/internal/reconcile"),
		metrics:  newMetrics(p.Registerer),
	}
}

func (s *Service) Run(ctx context.Context, kind usagedomain.SourceKind) (reconciledomain.RunSummary, error) {
	source, ok := s.sources[kind]
	if !ok {
		return reconciledomain.RunSummary{}, fmt.Errorf("%w: %s", reconciledomain.ErrUnknownSource, kind)
	}

	summary := reconciledomain.RunSummary{
		RunID:     ulid.Make().String(),
		Source:    kind,
		StartedAt: s.clock.Now(ctx),
	}
	log := s.log.With(zap.String("run_id", summary.RunID), zap.String("source", string(kind)))
	s.metrics.runs.WithLabelValues(string(kind)).Inc()

	customers, err := s.customer.List(ctx, s.db, customerFilter(kind))
	if err != nil {
		return summary, fmt.Errorf("list customers: %w", err)
	}
	log.Info("reconciliation started", zap.Int("customers", len(customers)))

	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = s.clock.Now(ctx)
			return summary, err
		}

		out, skipped := s.reconcile(ctx, *c, source, reconciledomain.CustomerLog{})
		summary.Customers++
		if skipped {
			summary.Skipped++
		}
		summary.Changes += len(out.Changes)
		summary.Errors += len(out.Errors)
		s.notify(ctx, *c, out)
	}

	summary.FinishedAt = s.clock.Now(ctx)
	log.Info("reconciliation finished",
		zap.Int("customers", summary.Customers),
		zap.Int("skipped", summary.Skipped),
		zap.Int("changes", summary.Changes),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (s *Service) ReconcileCustomer(ctx context.Context, customer customerdomain.Customer, source usagedomain.Source, log reconciledomain.CustomerLog) reconciledomain.CustomerLog {
	out, _ := s.reconcile(ctx, customer, source, log)
	return out
}

func (s *Service) reconcile(ctx context.Context, customer customerdomain.Customer, source usagedomain.Source, log reconciledomain.CustomerLog) (reconciledomain.CustomerLog, bool) {
	kind := source.Kind()
	ctx, span := s.tracer.Start(ctx, "reconcile.customer", trace.WithAttributes(
		attribute.String("customer.id", customer.ID.String()),
		attribute.String("source", string(kind)),
	))
	defer span.End()

	changesBefore, errorsBefore := len(log.Changes), len(log.Errors)
	defer func() {
		s.metrics.customers.WithLabelValues(string(kind)).Inc()
		s.metrics.changes.WithLabelValues(string(kind)).Add(float64(len(log.Changes) - changesBefore))
		s.metrics.errors.WithLabelValues(string(kind)).Add(float64(len(log.Errors) - errorsBefore))
	}()

	externalID := externalIDFor(customer, kind)
	quantities, err := source.ListQuantities(ctx, externalID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "source unavailable")
		s.log.Warn("customer skipped",
			zap.String("customer_id", customer.ID.String()),
			zap.String("source", string(kind)),
			zap.Error(err),
		)
		log.Error("could not read %s data for customer %s: %v", sourceLabel(kind), customer.Name, err)
		return log, true
	}

	switch kind {
	case usagedomain.SourceVMM:
		s.reconcileMetered(ctx, customer, quantities, &log)
	case usagedomain.SourceStreamOne:
		s.reconcileCloud(ctx, customer, quantities, &log)
	}
	return log, false
}

// reconcileMetered maps each resource reading onto every in-effect instance
// billed by the matching engine.
func (s *Service) reconcileMetered(ctx context.Context, customer customerdomain.Customer, quantities []usagedomain.Quantity, log *reconciledomain.CustomerLog) {
	today := clock.Today(ctx, s.clock)

	for _, q := range quantities {
		engine := subscriptiondomain.BillingEngine(q.ResourceKey)
		if !engine.Metered() {
			log.Error("unsupported resource %q reported by %s for customer %s", q.ResourceKey, sourceLabel(usagedomain.SourceVMM), customer.Name)
			continue
		}

		rows, err := s.subs.ListInstancesByEngine(ctx, s.db, customer.ID, engine)
		if err != nil {
			log.Error("could not load %s instances for customer %s: %v", engine, customer.Name, err)
			continue
		}

		matched := 0
		for _, row := range rows {
			post, err := s.store.LatestPost(ctx, row.ID)
			if err != nil {
				log.Error("could not read ledger of instance %s: %v", row.ID, err)
				continue
			}
			if post == nil || !post.InEffect(today) {
				continue
			}
			matched++

			if post.Units.Equal(q.Quantity) {
				continue
			}
			if err := s.supersede(ctx, row.Instance, *post, q.Quantity); err != nil {
				log.Error("could not update subscription %q (instance %s): %v", row.Name, row.ID, err)
				continue
			}
			log.Change("Subscription %q automatically synchronized with VMM. VMM shows: %s units. Subscription showed: %s units.",
				row.Name, q.Quantity.String(), post.Units.String())
		}

		if matched == 0 && q.Quantity.IsPositive() {
			log.Fail(fmt.Errorf("%w: VMM shows active %s usage for customer %s but no matching subscription instance exists",
				reconciledomain.ErrMappingNotFound, engine, customer.Name))
		}
	}
}

// reconcileCloud maps each licensed SKU onto the customer's instance with
// that SKU, provisioning or closing instances as the status demands.
func (s *Service) reconcileCloud(ctx context.Context, customer customerdomain.Customer, quantities []usagedomain.Quantity, log *reconciledomain.CustomerLog) {
	today := clock.Today(ctx, s.clock)

	for _, q := range quantities {
		row, err := s.subs.FindInstanceBySKU(ctx, s.db, customer.ID, q.ResourceKey)
		if err != nil {
			log.Error("could not look up SKU %s for customer %s: %v", q.ResourceKey, customer.Name, err)
			continue
		}

		if row == nil {
			if q.Status == usagedomain.StatusActive {
				s.provision(ctx, customer, q, log)
				continue
			}
			log.Fail(fmt.Errorf("%w: StreamOne lists SKU %s (%s) with status %q for customer %s but no subscription instance exists",
				reconciledomain.ErrMappingNotFound, q.ResourceKey, q.Name, statusLabel(q.Status), customer.Name))
			continue
		}

		post, err := s.store.LatestPost(ctx, row.ID)
		if err != nil {
			log.Error("could not read ledger of instance %s: %v", row.ID, err)
			continue
		}
		if post == nil {
			log.Error("subscription instance %s (%q) has no ledger posts", row.ID, row.Name)
			continue
		}

		if q.Status == usagedomain.StatusInactive {
			if post.IsOpen() {
				s.closeInactive(ctx, customer, *row, q, log)
			}
			continue
		}

		switch {
		case post.InEffect(today):
			if post.Units.Equal(q.Quantity) {
				continue
			}
			if err := s.supersede(ctx, row.Instance, *post, q.Quantity); err != nil {
				log.Error("could not update subscription instance %s (%q): %v", row.ID, row.Name, err)
				continue
			}
			log.Change("Subscriptioninstance %s: %q automatically synchronized with StreamOne. StreamOne shows: %s units. Subscription showed: %s units.",
				row.ID, row.Name, q.Quantity.String(), post.Units.String())
		case post.IsOpen():
			log.Error("subscription instance %s (%q) ended on %s but StreamOne still lists it", row.ID, row.Name, post.EndDate.Format(time.DateOnly))
		case q.Status == usagedomain.StatusActive:
			s.reactivate(ctx, *row, *post, q, log)
		}
	}
}

func (s *Service) provision(ctx context.Context, customer customerdomain.Customer, q usagedomain.Quantity, log *reconciledomain.CustomerLog) {
	sub, created, err := s.catalog.EnsureSubscription(ctx, q.ResourceKey)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrMissingPricing) {
			log.Fail(fmt.Errorf("%w: cannot create subscription for SKU %s: %w", reconciledomain.ErrConfiguration, q.ResourceKey, err))
			return
		}
		log.Error("could not resolve catalog subscription for SKU %s: %v", q.ResourceKey, err)
		return
	}
	if created {
		log.Change("Subscription %q created from StreamOne catalog for SKU %s.", sub.Name, q.ResourceKey)
	}

	name := strings.TrimSpace(q.Name)
	if name == "" {
		name = sub.Name
	}
	start := clock.Today(ctx, s.clock)
	if !q.CreatedAt.IsZero() {
		start = clock.Date(q.CreatedAt)
	}

	instance, post, err := s.store.Provision(ctx, ledgerdomain.ProvisionRequest{
		SubscriptionID: sub.ID,
		CustomerID:     customer.ID,
		Name:           name,
		Description:    sub.Description,
		SKU:            q.ResourceKey,
		Units:          q.Quantity,
		UnitPrice:      sub.Price,
		StartDate:      start,
	})
	if err != nil {
		log.Error("could not create subscription instance for SKU %s: %v", q.ResourceKey, err)
		return
	}

	log.Change("Subscriptioninstance %s: %q created from StreamOne with %s units starting %s.",
		instance.ID, instance.Name, post.Units.String(), post.StartDate.Format(time.DateOnly))
	s.record(ctx, auditdomain.RecordRequest{
		CustomerID: customer.ID,
		Kind:       auditdomain.KindInstanceProvisioned,
		Message:    fmt.Sprintf("Subscription %s with id: %s was created from StreamOne.", instance.Name, instance.ID),
		Metadata: map[string]any{
			"instance_id": instance.ID.String(),
			"sku":         q.ResourceKey,
			"units":       post.Units.String(),
		},
	})
}

func (s *Service) closeInactive(ctx context.Context, customer customerdomain.Customer, row subscriptiondomain.InstanceRow, q usagedomain.Quantity, log *reconciledomain.CustomerLog) {
	attribution := q.Attribution()
	effective := attribution.ChangedAt
	if effective.IsZero() {
		effective = s.clock.Now(ctx)
	}

	var closed *ledgerdomain.Post
	err := s.withRetry(ctx, "close", func() error {
		var err error
		closed, err = s.store.CloseAsInactive(ctx, row.ID, effective)
		return err
	})
	if err != nil {
		log.Error("could not close subscription instance %s (%q): %v", row.ID, row.Name, err)
		return
	}
	if closed == nil {
		return
	}

	log.Change("Subscriptioninstance %s: %q automatically closed since it's inactive.", row.ID, row.Name)

	req := auditdomain.RecordRequest{
		CustomerID: customer.ID,
		Kind:       auditdomain.KindInstanceInactivated,
		Metadata: map[string]any{
			"instance_id": row.ID.String(),
			"sku":         q.ResourceKey,
			"end_date":    closed.EndDate.Format(time.DateOnly),
			"changed_by":  attribution.ChangedBy,
		},
	}
	employee, err := s.customer.FindEmployeeByName(ctx, s.db, attribution.ChangedBy)
	if err != nil {
		s.log.Warn("employee lookup failed", zap.String("name", attribution.ChangedBy), zap.Error(err))
	}
	stamp := effective.UTC().Format(time.DateTime)
	if employee != nil {
		req.EmployeeID = &employee.ID
		req.Message = fmt.Sprintf("Subscription %s with id: %s was set as inactive on %s and has been closed.", row.Name, row.ID, stamp)
	} else {
		req.Message = fmt.Sprintf("Subscription %s with id: %s was set as inactive in StreamOne on %s and has been closed.", row.Name, row.ID, stamp)
	}
	s.record(ctx, req)
}

// reactivate opens a fresh post for an instance whose ledger was closed but
// which the provider lists as active again.
func (s *Service) reactivate(ctx context.Context, row subscriptiondomain.InstanceRow, last ledgerdomain.Post, q usagedomain.Quantity, log *reconciledomain.CustomerLog) {
	today := clock.Today(ctx, s.clock)
	err := s.withRetry(ctx, "reactivate", func() error {
		_, err := s.store.Insert(ctx, ledgerdomain.Post{
			InstanceID: row.ID,
			Units:      q.Quantity,
			UnitPrice:  last.UnitPrice,
			StartDate:  today,
		})
		return err
	})
	if err != nil {
		log.Error("could not reactivate subscription instance %s (%q): %v", row.ID, row.Name, err)
		return
	}
	log.Change("Subscriptioninstance %s: %q reactivated from StreamOne with %s units.", row.ID, row.Name, q.Quantity.String())
}

func (s *Service) supersede(ctx context.Context, instance subscriptiondomain.Instance, current ledgerdomain.Post, units decimal.Decimal) error {
	return s.withRetry(ctx, "supersede", func() error {
		_, err := s.store.Supersede(ctx, instance.ID, units, current.UnitPrice)
		return err
	})
}

// withRetry repeats fn after a write conflict, up to the configured number
// of extra attempts.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			s.metrics.retries.WithLabelValues(op).Inc()
			s.log.Debug("retrying ledger write", zap.String("operation", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		err = fn()
		if err == nil || !errors.Is(err, ledgerdomain.ErrWriteConflict) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Service) record(ctx context.Context, req auditdomain.RecordRequest) {
	if _, err := s.audit.Record(ctx, req); err != nil {
		s.log.Error("customer log not written",
			zap.String("customer_id", req.CustomerID.String()),
			zap.String("kind", string(req.Kind)),
			zap.Error(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, customer customerdomain.Customer, log reconciledomain.CustomerLog) {
	if log.Empty() {
		return
	}

	var email string
	if len(log.Changes) > 0 {
		salesperson, err := s.customer.FindSalesperson(ctx, s.db, customer.ID)
		if err != nil {
			s.log.Warn("salesperson lookup failed", zap.String("customer_id", customer.ID.String()), zap.Error(err))
		}
		if salesperson != nil {
			email = salesperson.Email
		}
	}
	s.notifier.EmitCustomer(ctx, customer.Name, email, log)
}

func customerFilter(kind usagedomain.SourceKind) customerdomain.ListCustomerFilter {
	switch kind {
	case usagedomain.SourceVMM:
		return customerdomain.ListCustomerFilter{WithVMMRef: true}
	case usagedomain.SourceStreamOne:
		return customerdomain.ListCustomerFilter{WithCSPTenant: true}
	}
	return customerdomain.ListCustomerFilter{}
}

func externalIDFor(customer customerdomain.Customer, kind usagedomain.SourceKind) string {
	if kind == usagedomain.SourceVMM {
		return customer.VMMRef
	}
	return customer.CSPTenantID
}

func sourceLabel(kind usagedomain.SourceKind) string {
	switch kind {
	case usagedomain.SourceVMM:
		return "VMM"
	case usagedomain.SourceStreamOne:
		return "StreamOne"
	}
	return string(kind)
}

func statusLabel(status usagedomain.Status) string {
	if status == usagedomain.StatusUnknown {
		return "unknown"
	}
	return string(status)
}
