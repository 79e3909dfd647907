package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/railzwaylabs/subsync/internal/usage/streamone"
)

var ErrMissingPricing = errors.New("catalog_missing_pricing")

// Provider is the upstream product catalog.
type Provider interface {
	ProductBySKU(ctx context.Context, sku string) (*streamone.Product, error)
	PricingBySKU(ctx context.Context, sku string, quantity int) (*streamone.Pricing, error)
}

type SyncResult struct {
	Checked int
	Updated int
	Failed  int
}

type Service interface {
	// EnsureSubscription returns the catalog subscription for sku, creating
	// it from provider data when missing.
	EnsureSubscription(ctx context.Context, sku string) (subscriptiondomain.Subscription, bool, error)
	// SyncPrices refreshes the list price of every SKU subscription.
	SyncPrices(ctx context.Context) (SyncResult, error)
}
