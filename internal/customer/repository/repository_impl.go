package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() customerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *customerdomain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, name, vmm_ref, csp_tenant_id, salesperson_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		c.VMMRef,
		c.CSPTenantID,
		c.SalespersonID,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) InsertEmployee(ctx context.Context, db *gorm.DB, e *customerdomain.Employee) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO employees (id, name, email, directory_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID,
		e.Name,
		e.Email,
		e.DirectoryID,
		e.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customerdomain.Customer, error) {
	var customer customerdomain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, vmm_ref, csp_tenant_id, salesperson_id, created_at, updated_at
		 FROM customers WHERE id = ?`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter customerdomain.ListCustomerFilter) ([]*customerdomain.Customer, error) {
	var customers []*customerdomain.Customer
	stmt := db.WithContext(ctx).Model(&customerdomain.Customer{})

	if filter.ID != nil {
		stmt = stmt.Where("id = ?", *filter.ID)
	}
	if filter.WithVMMRef {
		stmt = stmt.Where("vmm_ref IS NOT NULL AND vmm_ref <> ''")
	}
	if filter.WithCSPTenant {
		stmt = stmt.Where("csp_tenant_id IS NOT NULL AND csp_tenant_id <> ''")
	}

	if err := stmt.Order("id ASC").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) FindSalesperson(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*customerdomain.Employee, error) {
	var employee customerdomain.Employee
	err := db.WithContext(ctx).Raw(
		`SELECT e.id, e.name, e.email, e.directory_id, e.created_at
		 FROM customers c
		 JOIN employees e ON e.id = c.salesperson_id
		 WHERE c.id = ?`,
		customerID,
	).Scan(&employee).Error
	if err != nil {
		return nil, err
	}
	if employee.ID == 0 {
		return nil, nil
	}
	return &employee, nil
}

func (r *repo) FindEmployeeByName(ctx context.Context, db *gorm.DB, name string) (*customerdomain.Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var employee customerdomain.Employee
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, directory_id, created_at
		 FROM employees WHERE LOWER(name) = LOWER(?) ORDER BY id LIMIT 1`,
		name,
	).Scan(&employee).Error
	if err != nil {
		return nil, err
	}
	if employee.ID == 0 {
		return nil, nil
	}
	return &employee, nil
}
