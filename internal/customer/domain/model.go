package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Customer struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	Name          string        `gorm:"type:text;not null"`
	VMMRef        string        `gorm:"column:vmm_ref;type:varchar(64);index"`
	CSPTenantID   string        `gorm:"column:csp_tenant_id;type:varchar(64);index"`
	SalespersonID *snowflake.ID `gorm:"column:salesperson_id"`
	CreatedAt     time.Time     `gorm:"not null"`
	UpdatedAt     time.Time     `gorm:"not null"`
}

func (Customer) TableName() string { return "customers" }

type Employee struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Name        string       `gorm:"type:varchar(255);not null;index"`
	Email       string       `gorm:"type:varchar(255)"`
	DirectoryID string       `gorm:"column:directory_id;type:varchar(64)"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (Employee) TableName() string { return "employees" }

// ListCustomerFilter narrows the customer scan. Empty filter returns everyone.
type ListCustomerFilter struct {
	ID            *snowflake.ID
	WithVMMRef    bool
	WithCSPTenant bool
}
