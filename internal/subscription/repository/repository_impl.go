package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const instanceRowColumns = `si.id, si.subscription_id, si.customer_id, si.name, si.description, si.sku,
	si.last_invoiced_at, si.created_at, si.updated_at,
	s.name AS subscription_name, s.product_number, s.billing_engine, s.payment_frequency, s.group_id`

func (r *repo) InsertGroup(ctx context.Context, db *gorm.DB, g *subscriptiondomain.Group) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_groups (id, name, created_at) VALUES (?, ?, ?)`,
		g.ID,
		g.Name,
		g.CreatedAt,
	).Error
}

func (r *repo) ListGroups(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]subscriptiondomain.Group, error) {
	var groups []subscriptiondomain.Group
	if len(ids) == 0 {
		return groups, nil
	}
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&groups).Error
	return groups, err
}

func (r *repo) InsertSubscription(ctx context.Context, db *gorm.DB, s *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, product_number, name, description, billing_engine, payment_frequency, group_id, sku, price, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.ProductNumber,
		s.Name,
		s.Description,
		s.BillingEngine,
		s.PaymentFrequency,
		s.GroupID,
		s.SKU,
		s.Price,
		s.Active,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindSubscriptionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) FindSubscriptionBySKU(ctx context.Context, db *gorm.DB, sku string) (*subscriptiondomain.Subscription, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, subscriptiondomain.ErrInvalidSKU
	}

	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("sku = ?", sku).Limit(1).Find(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) ListSubscriptionsWithSKU(ctx context.Context, db *gorm.DB) ([]subscriptiondomain.Subscription, error) {
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Where("sku IS NOT NULL AND sku <> ''").
		Order("id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *repo) UpdateSubscriptionPrice(ctx context.Context, db *gorm.DB, id snowflake.ID, price decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET price = ?, updated_at = ? WHERE id = ?`,
		price,
		at,
		id,
	).Error
}

func (r *repo) InsertInstance(ctx context.Context, db *gorm.DB, i *subscriptiondomain.Instance) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_instances (id, subscription_id, customer_id, name, description, sku, last_invoiced_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID,
		i.SubscriptionID,
		i.CustomerID,
		i.Name,
		i.Description,
		i.SKU,
		i.LastInvoicedAt,
		i.CreatedAt,
		i.UpdatedAt,
	).Error
}

func (r *repo) FindInstanceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.InstanceRow, error) {
	var row subscriptiondomain.InstanceRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+instanceRowColumns+`
		 FROM subscription_instances si
		 JOIN subscriptions s ON s.id = si.subscription_id
		 WHERE si.id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

// FindInstanceBySKU matches on the instance SKU first and falls back to the
// catalog SKU for instances created before SKUs were copied onto them.
func (r *repo) FindInstanceBySKU(ctx context.Context, db *gorm.DB, customerID snowflake.ID, sku string) (*subscriptiondomain.InstanceRow, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, subscriptiondomain.ErrInvalidSKU
	}

	var row subscriptiondomain.InstanceRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+instanceRowColumns+`
		 FROM subscription_instances si
		 JOIN subscriptions s ON s.id = si.subscription_id
		 WHERE si.customer_id = ? AND (si.sku = ? OR s.sku = ?)
		 ORDER BY si.id DESC
		 LIMIT 1`,
		customerID,
		sku,
		sku,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) ListInstancesByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]subscriptiondomain.InstanceRow, error) {
	var rows []subscriptiondomain.InstanceRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+instanceRowColumns+`
		 FROM subscription_instances si
		 JOIN subscriptions s ON s.id = si.subscription_id
		 WHERE si.customer_id = ?
		 ORDER BY si.id ASC`,
		customerID,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) ListInstancesByEngine(ctx context.Context, db *gorm.DB, customerID snowflake.ID, engine subscriptiondomain.BillingEngine) ([]subscriptiondomain.InstanceRow, error) {
	var rows []subscriptiondomain.InstanceRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+instanceRowColumns+`
		 FROM subscription_instances si
		 JOIN subscriptions s ON s.id = si.subscription_id
		 WHERE si.customer_id = ? AND s.billing_engine = ?
		 ORDER BY si.id ASC`,
		customerID,
		engine,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) UpdateLastInvoiced(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscription_instances SET last_invoiced_at = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		id,
	).Error
}
