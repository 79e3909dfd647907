package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

// LockInstance takes a row lock on the instance for the rest of the
// transaction. SQLite has no row locks and relies on the instance locker.
func (r *repo) LockInstance(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) error {
	stmt := db.WithContext(ctx)
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var instance subscriptiondomain.Instance
	err := stmt.
		Select("id").
		Where("id = ?", instanceID).
		Limit(1).
		Find(&instance).Error
	if err != nil {
		return err
	}
	if instance.ID == 0 {
		return subscriptiondomain.ErrInstanceNotFound
	}
	return nil
}

func (r *repo) InsertPost(ctx context.Context, db *gorm.DB, p *ledgerdomain.Post) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_instance_posts (id, instance_id, units, unit_price, start_date, end_date, status, invoiced_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.InstanceID,
		p.Units,
		p.UnitPrice,
		p.StartDate,
		p.EndDate,
		p.Status,
		p.InvoicedAt,
		p.CreatedAt,
	).Error
}

func (r *repo) ListPosts(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) ([]ledgerdomain.Post, error) {
	var posts []ledgerdomain.Post
	err := db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("start_date ASC").
		Order("id ASC").
		Find(&posts).Error
	return posts, err
}

func (r *repo) ClosePost(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time, status ledgerdomain.PostStatus) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscription_instance_posts SET end_date = ?, status = ?
		 WHERE id = ? AND status = ?`,
		endDate,
		status,
		id,
		ledgerdomain.PostStatusOpen,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ledgerdomain.ErrWriteConflict
	}
	return nil
}

func (r *repo) MarkPostsInvoiced(ctx context.Context, db *gorm.DB, instanceID snowflake.ID, ids []snowflake.ID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE subscription_instance_posts SET invoiced_at = ?
		 WHERE instance_id = ? AND id IN ?`,
		at,
		instanceID,
		ids,
	)
	return res.RowsAffected, res.Error
}
