package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrSourceUnavailable = errors.New("usage_source_unavailable")
	ErrSchemaMismatch    = errors.New("usage_schema_mismatch")
)

type SourceKind string

const (
	SourceVMM       SourceKind = "vmm"
	SourceStreamOne SourceKind = "streamone"
)

// Status is the provider-reported state of a resource. StatusUnknown means
// the provider does not model it.
type Status string

const (
	StatusUnknown  Status = ""
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type ChangeEvent struct {
	ChangedAt time.Time
	ChangedBy string
}

// Quantity is one resource as the provider sees it for a customer.
type Quantity struct {
	ResourceKey string
	Name        string
	Quantity    decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	History     []ChangeEvent
}

// Attribution picks the change that explains the current status: the
// newest history entry later than UpdatedAt, else UpdatedAt itself with no
// author.
func (q Quantity) Attribution() ChangeEvent {
	out := ChangeEvent{ChangedAt: q.UpdatedAt}
	for _, h := range q.History {
		if h.ChangedAt.After(out.ChangedAt) {
			out = h
		}
	}
	return out
}

// Source lists the current quantities of one customer from an upstream
// provider. Transport and decode failures wrap ErrSourceUnavailable.
type Source interface {
	Kind() SourceKind
	ListQuantities(ctx context.Context, customerExternalID string) ([]Quantity, error)
}
