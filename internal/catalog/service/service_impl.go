package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	catalogdomain "github.com/railzwaylabs/subsync/internal/catalog/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"github.com/railzwaylabs/subsync/internal/config"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/railzwaylabs/subsync/internal/usage/streamone"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const unitPricePlaces = 6

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.ReconcileConfig
	subRepo  subscriptiondomain.Repository
	provider catalogdomain.Provider
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	SubRepo  subscriptiondomain.Repository
	Provider catalogdomain.Provider
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("catalog.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config.Reconcile,
		subRepo:  p.SubRepo,
		provider: p.Provider,
	}
}

func (s *Service) EnsureSubscription(ctx context.Context, sku string) (subscriptiondomain.Subscription, bool, error) {
	sku = strings.TrimSpace(sku)
	existing, err := s.subRepo.FindSubscriptionBySKU(ctx, s.db, sku)
	if err != nil {
		return subscriptiondomain.Subscription{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	product, unitPrice, err := s.quote(ctx, sku)
	if err != nil {
		return subscriptiondomain.Subscription{}, false, err
	}

	freq, err := billingcycledomain.ParseFrequency(product.BillingType)
	if err != nil {
		s.log.Warn("unknown billing type, defaulting to monthly",
			zap.String("sku", sku),
			zap.String("billing_type", product.BillingType),
		)
		freq = billingcycledomain.Monthly
	}

	now := s.clock.Now(ctx)
	skuValue := sku
	sub := subscriptiondomain.Subscription{
		ID:               s.genID.Generate(),
		ProductNumber:    s.cfg.CloudProductNumber,
		Name:             fmt.Sprintf("%s - %s", product.SKUName, product.BillingType),
		Description:      product.Description,
		BillingEngine:    subscriptiondomain.EngineCloudSubscription,
		PaymentFrequency: freq,
		GroupID:          snowflake.ID(s.cfg.CloudGroupID),
		SKU:              &skuValue,
		Price:            unitPrice,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.subRepo.InsertSubscription(ctx, s.db, &sub); err != nil {
		return subscriptiondomain.Subscription{}, false, fmt.Errorf("insert subscription %s: %w", sku, err)
	}

	s.log.Info("catalog subscription created",
		zap.String("sku", sku),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("price", unitPrice.String()),
		zap.Stringer("frequency", freq),
	)
	return sub, true, nil
}

func (s *Service) SyncPrices(ctx context.Context) (catalogdomain.SyncResult, error) {
	subs, err := s.subRepo.ListSubscriptionsWithSKU(ctx, s.db)
	if err != nil {
		return catalogdomain.SyncResult{}, err
	}

	var result catalogdomain.SyncResult
	for _, sub := range subs {
		if sub.SKU == nil {
			continue
		}
		result.Checked++

		_, price, err := s.quote(ctx, *sub.SKU)
		if err != nil {
			result.Failed++
			s.log.Warn("price sync skipped", zap.String("sku", *sub.SKU), zap.Error(err))
			continue
		}
		if price.Equal(sub.Price) {
			continue
		}

		if err := s.subRepo.UpdateSubscriptionPrice(ctx, s.db, sub.ID, price, s.clock.Now(ctx)); err != nil {
			result.Failed++
			s.log.Error("price update failed", zap.String("sku", *sub.SKU), zap.Error(err))
			continue
		}
		result.Updated++
		s.log.Info("catalog price updated",
			zap.String("sku", *sub.SKU),
			zap.String("old_price", sub.Price.String()),
			zap.String("new_price", price.String()),
		)
	}
	return result, nil
}

// quote derives the unit price of sku from the MSRP of its minimum order
// quantity.
func (s *Service) quote(ctx context.Context, sku string) (*streamone.Product, decimal.Decimal, error) {
	product, err := s.provider.ProductBySKU(ctx, sku)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if product == nil {
		return nil, decimal.Zero, fmt.Errorf("%w: sku %s not in provider catalog", catalogdomain.ErrMissingPricing, sku)
	}

	qtyMin := product.QtyMin
	if qtyMin <= 0 {
		qtyMin = 1
	}

	pricing, err := s.provider.PricingBySKU(ctx, sku, qtyMin)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if pricing == nil || pricing.MSRP.IsZero() {
		return nil, decimal.Zero, fmt.Errorf("%w: sku %s has no msrp", catalogdomain.ErrMissingPricing, sku)
	}

	unit := pricing.MSRP.DivRound(decimal.NewFromInt(int64(qtyMin)), unitPricePlaces)
	return product, unit, nil
}
