package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	subscriptionrepository "github.com/railzwaylabs/subsync/internal/subscription/repository"
	"github.com/railzwaylabs/subsync/internal/usage/streamone"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProvider struct {
	products map[string]*streamone.Product
	msrp     map[string]decimal.Decimal
	calls    []int
}

func (f *fakeProvider) ProductBySKU(_ context.Context, sku string) (*streamone.Product, error) {
	return f.products[sku], nil
}

func (f *fakeProvider) PricingBySKU(_ context.Context, sku string, quantity int) (*streamone.Pricing, error) {
	f.calls = append(f.calls, quantity)
	price, ok := f.msrp[sku]
	if !ok {
		return nil, nil
	}
	return &streamone.Pricing{SKU: sku, Quantity: quantity, MSRP: price}, nil
}

func newTestService(t *testing.T, provider catalogdomain.Provider) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{Reconcile: config.ReconcileConfig{CloudProductNumber: "40011000", CloudGroupID: 13}}
	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.Fixed{At: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		Config:   cfg,
		SubRepo:  subscriptionrepository.Provide(),
		Provider: provider,
	})
	return svc.(*Service), db
}

func TestEnsureSubscription_CreatesFromProvider(t *testing.T) {
	provider := &fakeProvider{
		products: map[string]*streamone.Product{
			"CFQ7TTC0LF8R:0001": {SKU: "CFQ7TTC0LF8R:0001", SKUName: "Microsoft 365 E3", Description: "Office suite", BillingType: "Annual", QtyMin: 5},
		},
		msrp: map[string]decimal.Decimal{"CFQ7TTC0LF8R:0001": decimal.RequireFromString("150")},
	}
	svc, _ := newTestService(t, provider)
	ctx := context.Background()

	sub, created, err := svc.EnsureSubscription(ctx, "CFQ7TTC0LF8R:0001")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Microsoft 365 E3 - Annual", sub.Name)
	assert.Equal(t, billingcycledomain.Yearly, sub.PaymentFrequency)
	assert.Equal(t, subscriptiondomain.EngineCloudSubscription, sub.BillingEngine)
	assert.Equal(t, "40011000", sub.ProductNumber)
	assert.Equal(t, snowflake.ID(13), sub.GroupID)
	assert.True(t, decimal.NewFromInt(30).Equal(sub.Price))
	assert.Equal(t, []int{5}, provider.calls)

	again, created, err := svc.EnsureSubscription(ctx, "CFQ7TTC0LF8R:0001")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sub.ID, again.ID)
	assert.Len(t, provider.calls, 1)
}

func TestEnsureSubscription_MissingPricing(t *testing.T) {
	provider := &fakeProvider{
		products: map[string]*streamone.Product{
			"NOPRICE": {SKU: "NOPRICE", SKUName: "Thing", BillingType: "Monthly"},
		},
		msrp: map[string]decimal.Decimal{},
	}
	svc, _ := newTestService(t, provider)

	_, _, err := svc.EnsureSubscription(context.Background(), "NOPRICE")
	assert.ErrorIs(t, err, catalogdomain.ErrMissingPricing)

	_, _, err = svc.EnsureSubscription(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, catalogdomain.ErrMissingPricing)
}

func TestEnsureSubscription_UnknownBillingTypeDefaultsToMonthly(t *testing.T) {
	provider := &fakeProvider{
		products: map[string]*streamone.Product{
			"ODD": {SKU: "ODD", SKUName: "Odd", BillingType: "Triennial", QtyMin: 1},
		},
		msrp: map[string]decimal.Decimal{"ODD": decimal.RequireFromString("9.99")},
	}
	svc, _ := newTestService(t, provider)

	sub, _, err := svc.EnsureSubscription(context.Background(), "ODD")
	require.NoError(t, err)
	assert.Equal(t, billingcycledomain.Monthly, sub.PaymentFrequency)
}

func TestSyncPrices_UpdatesChangedPrices(t *testing.T) {
	provider := &fakeProvider{
		products: map[string]*streamone.Product{
			"A": {SKU: "A", SKUName: "A", BillingType: "Monthly", QtyMin: 1},
			"B": {SKU: "B", SKUName: "B", BillingType: "Monthly", QtyMin: 1},
		},
		msrp: map[string]decimal.Decimal{
			"A": decimal.RequireFromString("10"),
			"B": decimal.RequireFromString("20"),
		},
	}
	svc, db := newTestService(t, provider)
	ctx := context.Background()

	_, _, err := svc.EnsureSubscription(ctx, "A")
	require.NoError(t, err)
	_, _, err = svc.EnsureSubscription(ctx, "B")
	require.NoError(t, err)

	provider.msrp["A"] = decimal.RequireFromString("12")
	delete(provider.msrp, "B")

	result, err := svc.SyncPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalogdomain.SyncResult{Checked: 2, Updated: 1, Failed: 1}, result)

	sub, err := subscriptionrepository.Provide().FindSubscriptionBySKU(ctx, db, "A")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, decimal.NewFromInt(12).Equal(sub.Price))
}
