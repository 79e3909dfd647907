package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	InsertEmployee(ctx context.Context, db *gorm.DB, employee *Employee) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter) ([]*Customer, error)
	FindSalesperson(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*Employee, error)
	FindEmployeeByName(ctx context.Context, db *gorm.DB, name string) (*Employee, error)
}
