package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	LockInstance(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) error
	InsertPost(ctx context.Context, db *gorm.DB, post *Post) error
	ListPosts(ctx context.Context, db *gorm.DB, instanceID snowflake.ID) ([]Post, error)
	ClosePost(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time, status PostStatus) error
	MarkPostsInvoiced(ctx context.Context, db *gorm.DB, instanceID snowflake.ID, ids []snowflake.ID, at time.Time) (int64, error)
}
