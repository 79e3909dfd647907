package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
)

// Instance is one invoiceable instance with the posts its next invoice
// covers.
type Instance struct {
	Instance subscriptiondomain.InstanceRow
	Period   billingcycledomain.Period
	Posts    []ledgerdomain.Post
}

type Subscription struct {
	Subscription subscriptiondomain.Subscription
	Instances    []Instance
}

type Group struct {
	Group         subscriptiondomain.Group
	Subscriptions []Subscription
}

type Service interface {
	// Eligible returns the customer's invoiceable instances nested by
	// subscription group and subscription. Empty levels are omitted.
	Eligible(ctx context.Context, customerID snowflake.ID) ([]Group, error)
	// MarkInvoiced stamps every post in groups as invoiced and returns the
	// number of instances updated.
	MarkInvoiced(ctx context.Context, groups []Group) (int, error)
}
