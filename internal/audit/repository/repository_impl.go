package repository

import (
	"context"

	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() auditdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.CustomerLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter auditdomain.ListFilter) ([]auditdomain.CustomerLog, error) {
	stmt := db.WithContext(ctx).Model(&auditdomain.CustomerLog{})
	if filter.CustomerID != nil {
		stmt = stmt.Where("customer_id = ?", *filter.CustomerID)
	}
	if len(filter.Kinds) > 0 {
		stmt = stmt.Where("kind IN ?", filter.Kinds)
	}
	if !filter.From.IsZero() {
		stmt = stmt.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		stmt = stmt.Where("created_at < ?", filter.To)
	}

	var out []auditdomain.CustomerLog
	if err := stmt.Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
