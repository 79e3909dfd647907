package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertGroup(ctx context.Context, db *gorm.DB, group *Group) error
	ListGroups(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Group, error)

	InsertSubscription(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindSubscriptionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindSubscriptionBySKU(ctx context.Context, db *gorm.DB, sku string) (*Subscription, error)
	ListSubscriptionsWithSKU(ctx context.Context, db *gorm.DB) ([]Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, db *gorm.DB, id snowflake.ID, price decimal.Decimal, at time.Time) error

	InsertInstance(ctx context.Context, db *gorm.DB, instance *Instance) error
	FindInstanceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InstanceRow, error)
	FindInstanceBySKU(ctx context.Context, db *gorm.DB, customerID snowflake.ID, sku string) (*InstanceRow, error)
	ListInstancesByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]InstanceRow, error)
	ListInstancesByEngine(ctx context.Context, db *gorm.DB, customerID snowflake.ID, engine BillingEngine) ([]InstanceRow, error)
	UpdateLastInvoiced(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
