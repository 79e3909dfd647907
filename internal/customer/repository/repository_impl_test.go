package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	customerdomain "github.com/railzwaylabs/subsync/internal/customer/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&customerdomain.Customer{}, &customerdomain.Employee{}))
	return db
}

func TestRepository_CustomersAndSalesperson(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	r := Provide()
	now := time.Now().UTC()

	salesID := snowflake.ID(10)
	require.NoError(t, r.InsertEmployee(ctx, db, &customerdomain.Employee{ID: salesID, Name: "Kari Nordmann", Email: "kari@example.com", CreatedAt: now}))
	require.NoError(t, r.Insert(ctx, db, &customerdomain.Customer{ID: 1, Name: "Acme", VMMRef: "1001", SalespersonID: &salesID, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, r.Insert(ctx, db, &customerdomain.Customer{ID: 2, Name: "Globex", CSPTenantID: "tenant-2", CreatedAt: now, UpdatedAt: now}))

	vmm, err := r.List(ctx, db, customerdomain.ListCustomerFilter{WithVMMRef: true})
	require.NoError(t, err)
	require.Len(t, vmm, 1)
	assert.Equal(t, "Acme", vmm[0].Name)

	csp, err := r.List(ctx, db, customerdomain.ListCustomerFilter{WithCSPTenant: true})
	require.NoError(t, err)
	require.Len(t, csp, 1)
	assert.Equal(t, "tenant-2", csp[0].CSPTenantID)

	sales, err := r.FindSalesperson(ctx, db, 1)
	require.NoError(t, err)
	require.NotNil(t, sales)
	assert.Equal(t, "kari@example.com", sales.Email)

	none, err := r.FindSalesperson(ctx, db, 2)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepository_FindEmployeeByName(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	r := Provide()

	require.NoError(t, r.InsertEmployee(ctx, db, &customerdomain.Employee{ID: 7, Name: "Ola Nordmann", CreatedAt: time.Now().UTC()}))

	found, err := r.FindEmployeeByName(ctx, db, " ola nordmann ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(7), found.ID)

	missing, err := r.FindEmployeeByName(ctx, db, "Someone Else")
	require.NoError(t, err)
	assert.Nil(t, missing)

	blank, err := r.FindEmployeeByName(ctx, db, "")
	require.NoError(t, err)
	assert.Nil(t, blank)
}
