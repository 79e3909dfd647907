package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	"github.com/shopspring/decimal"
)

// BillingEngine selects where the quantity of a subscription comes from.
type BillingEngine string

const (
	EngineManual            BillingEngine = "manual"
	EngineVMCount           BillingEngine = "vm-count"
	EngineCPUCount          BillingEngine = "cpu-count"
	EngineMemoryGB          BillingEngine = "memory-gb"
	EngineStorageGB         BillingEngine = "storage-gb"
	EngineCloudSubscription BillingEngine = "cloud-subscription"
)

// Metered reports whether the engine is driven by the virtualization metrics feed.
func (e BillingEngine) Metered() bool {
	switch e {
	case EngineVMCount, EngineCPUCount, EngineMemoryGB, EngineStorageGB:
		return true
	}
	return false
}

type Group struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Group) TableName() string { return "subscription_groups" }

// Subscription is a catalog entry: what is sold and how often it is invoiced.
type Subscription struct {
	ID               snowflake.ID                 `gorm:"primaryKey"`
	ProductNumber    string                       `gorm:"column:product_number;type:varchar(32);not null"`
	Name             string                       `gorm:"type:varchar(255);not null"`
	Description      string                       `gorm:"type:text"`
	BillingEngine    BillingEngine                `gorm:"column:billing_engine;type:varchar(32);not null"`
	PaymentFrequency billingcycledomain.Frequency `gorm:"column:payment_frequency;type:varchar(16);not null"`
	GroupID          snowflake.ID                 `gorm:"column:group_id;not null;index"`
	SKU              *string                      `gorm:"type:varchar(128);uniqueIndex"`
	Price            decimal.Decimal              `gorm:"type:numeric(20,6);not null"`
	Active           bool                         `gorm:"not null"`
	CreatedAt        time.Time                    `gorm:"not null"`
	UpdatedAt        time.Time                    `gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Instance is a subscription sold to one customer. Its billed history lives
// in the ledger posts.
type Instance struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"column:subscription_id;not null;index"`
	CustomerID     snowflake.ID `gorm:"column:customer_id;not null;index"`
	Name           string       `gorm:"type:varchar(255)"`
	Description    string       `gorm:"type:text"`
	SKU            string       `gorm:"type:varchar(128);index"`
	LastInvoicedAt *time.Time   `gorm:"column:last_invoiced_at"`
	CreatedAt      time.Time    `gorm:"not null"`
	UpdatedAt      time.Time    `gorm:"not null"`
}

func (Instance) TableName() string { return "subscription_instances" }

// InstanceRow is an instance joined with the catalog fields the
// reconciliation and invoicing paths need.
type InstanceRow struct {
	Instance
	SubscriptionName string
	ProductNumber    string
	BillingEngine    BillingEngine
	PaymentFrequency billingcycledomain.Frequency
	GroupID          snowflake.ID
}
