package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

// Store is the transactional face of the ledger. Every mutation holds the
// per-instance lock and runs in one database transaction.
type Store interface {
	LatestPost(ctx context.Context, instanceID snowflake.ID) (*Post, error)
	ListPosts(ctx context.Context, instanceID snowflake.ID) ([]Post, error)
	PostsOverlapping(ctx context.Context, instanceID snowflake.ID, period billingcycledomain.Period, lastInvoicedAt *time.Time) ([]Post, error)

	Provision(ctx context.Context, req ProvisionRequest) (subscriptiondomain.Instance, Post, error)
	Insert(ctx context.Context, post Post) (Post, error)
	Supersede(ctx context.Context, instanceID snowflake.ID, units, unitPrice decimal.Decimal) (SupersedeResult, error)
	CloseAsInactive(ctx context.Context, instanceID snowflake.ID, effectiveDate time.Time) (*Post, error)
	MarkInvoiced(ctx context.Context, instanceID snowflake.ID, postIDs []snowflake.ID, at time.Time) error

	VerifyInvariant(ctx context.Context, instanceID snowflake.ID) error
}

// ProvisionRequest creates an instance together with its first post.
type ProvisionRequest struct {
	SubscriptionID snowflake.ID
	CustomerID     snowflake.ID
	Name           string
	Description    string
	SKU            string
	Units          decimal.Decimal
	UnitPrice      decimal.Decimal
	StartDate      time.Time
}
