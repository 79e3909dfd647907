package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PostStatus is the lifecycle state of a ledger post. Open is the only
// non-terminal state.
type PostStatus string

const (
	PostStatusOpen       PostStatus = "open"
	PostStatusSuperseded PostStatus = "superseded"
	PostStatusInactive   PostStatus = "inactive"
)

// Post records the quantity and unit price billed for an instance over an
// inclusive range of calendar days. A nil EndDate means open-ended.
type Post struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	InstanceID snowflake.ID    `gorm:"column:instance_id;not null;index"`
	Units      decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(20,6);not null"`
	StartDate  time.Time       `gorm:"column:start_date;not null"`
	EndDate    *time.Time      `gorm:"column:end_date"`
	Status     PostStatus      `gorm:"type:varchar(16);not null"`
	InvoicedAt *time.Time      `gorm:"column:invoiced_at"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (Post) TableName() string { return "subscription_instance_posts" }

func (p Post) IsOpen() bool {
	return p.Status == PostStatusOpen
}

// Void reports a post that was superseded on the day it started. It covers
// no days and is ignored by every read path.
func (p Post) Void() bool {
	return p.EndDate != nil && p.EndDate.Before(p.StartDate)
}

// InEffect reports whether the post still bills on day.
func (p Post) InEffect(day time.Time) bool {
	if !p.IsOpen() || p.Void() {
		return false
	}
	return p.EndDate == nil || !p.EndDate.Before(day)
}

// InvoicedSince reports whether the post was last invoiced on or after day.
// An open post is billed again each period; callers pass the period start.
func (p Post) InvoicedSince(day time.Time) bool {
	return p.InvoicedAt != nil && !p.InvoicedAt.Before(day)
}

// SupersedeResult carries both sides of a quantity change.
type SupersedeResult struct {
	Closed Post
	Opened Post
}
