package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
)

var (
	ErrMappingNotFound = errors.New("reconcile_mapping_not_found")
	ErrConfiguration   = errors.New("reconcile_configuration_error")
	ErrUnknownSource   = errors.New("reconcile_unknown_source")
)

// CustomerLog accumulates the report lines of one customer. It is created per
// customer, threaded through the steps and dropped after notification.
type CustomerLog struct {
	Changes []string
	Errors  []string
}

func (l *CustomerLog) Change(format string, args ...any) {
	l.Changes = append(l.Changes, fmt.Sprintf(format, args...))
}

func (l *CustomerLog) Error(format string, args ...any) {
	l.Errors = append(l.Errors, fmt.Sprintf(format, args...))
}

func (l *CustomerLog) Fail(err error) {
	l.Errors = append(l.Errors, err.Error())
}

func (l CustomerLog) Empty() bool {
	return len(l.Changes) == 0 && len(l.Errors) == 0
}

type RunSummary struct {
	RunID      string
	Source     usagedomain.SourceKind
	Customers  int
	Skipped    int
	Changes    int
	Errors     int
	StartedAt  time.Time
	FinishedAt time.Time
}

type Service interface {
	// Run reconciles every customer that has an external id for the source.
	Run(ctx context.Context, kind usagedomain.SourceKind) (RunSummary, error)
	// ReconcileCustomer applies the source's view of one customer to the
	// ledger and returns the log with the lines it produced appended.
	ReconcileCustomer(ctx context.Context, customer customerdomain.Customer, source usagedomain.Source, log CustomerLog) CustomerLog
}

// Notifier delivers the report of one customer once it has been reconciled.
type Notifier interface {
	EmitCustomer(ctx context.Context, customerName, salespersonEmail string, log CustomerLog)
}
