package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindInstanceInactivated Kind = "instance_inactivated"
	KindInstanceProvisioned Kind = "instance_provisioned"
	KindQuantityChanged     Kind = "quantity_changed"
)

// CustomerLog is a durable record of an automatic change made on behalf of
// a customer. EmployeeID is nil when the change is attributed to the system.
type CustomerLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	CustomerID snowflake.ID      `gorm:"column:customer_id;not null;index"`
	EmployeeID *snowflake.ID     `gorm:"column:employee_id"`
	Kind       Kind              `gorm:"type:varchar(64);not null"`
	Message    string            `gorm:"type:text;not null"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
	CreatedAt  time.Time         `gorm:"not null;index"`
}

func (CustomerLog) TableName() string { return "customer_logs" }

type ListFilter struct {
	CustomerID *snowflake.ID
	Kinds      []Kind
	From       time.Time
	To         time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *CustomerLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]CustomerLog, error)
}

// RecordRequest is what callers supply; id and timestamp are assigned.
type RecordRequest struct {
	CustomerID snowflake.ID
	EmployeeID *snowflake.ID
	Kind       Kind
	Message    string
	Metadata   map[string]any
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (CustomerLog, error)
	List(ctx context.Context, filter ListFilter) ([]CustomerLog, error)
}
