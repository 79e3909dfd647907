package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	"github.com/railzwaylabs/subsync/internal/ledger/lock"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const instanceLockTTL = 30 * time.Second

type Store struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    ledgerdomain.Repository
	subRepo subscriptiondomain.Repository
	locker  lock.Locker
}

type StoreParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    ledgerdomain.Repository
	SubRepo subscriptiondomain.Repository
	Locker  lock.Locker
}

func NewStore(p StoreParam) ledgerdomain.Store {
	return &Store{
		db:  p.DB,
		log: p.Log.Named("ledger.store"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		subRepo: p.SubRepo,
		locker:  p.Locker,
	}
}

func (s *Store) ListPosts(ctx context.Context, instanceID snowflake.ID) ([]ledgerdomain.Post, error) {
	posts, err := s.repo.ListPosts(ctx, s.db, instanceID)
	if err != nil {
		return nil, err
	}
	return normalize(posts), nil
}

// LatestPost returns the open post, or the most recently started one when
// every post is closed.
func (s *Store) LatestPost(ctx context.Context, instanceID snowflake.ID) (*ledgerdomain.Post, error) {
	posts, err := s.ListPosts(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return latest(posts)
}

// PostsOverlapping returns the non-void posts that touch period or still
// bill today. Nothing is returned while the instance is inside its minimum
// gap since the last invoice.
func (s *Store) PostsOverlapping(ctx context.Context, instanceID snowflake.ID, period billingcycledomain.Period, lastInvoicedAt *time.Time) ([]ledgerdomain.Post, error) {
	today := clock.Today(ctx, s.clock)
	if lastInvoicedAt != nil && billingcycledomain.DaysBetween(*lastInvoicedAt, today) < period.MinimumDaysSinceLastInvoice {
		return nil, nil
	}

	posts, err := s.ListPosts(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	selected := make([]ledgerdomain.Post, 0, len(posts))
	for _, p := range posts {
		if p.Void() || p.StartDate.After(period.End) {
			continue
		}
		if p.EndDate == nil || !p.EndDate.Before(period.Start) || !p.EndDate.Before(today) {
			selected = append(selected, p)
		}
	}
	return selected, nil
}

func (s *Store) Provision(ctx context.Context, req ledgerdomain.ProvisionRequest) (subscriptiondomain.Instance, ledgerdomain.Post, error) {
	if req.SubscriptionID == 0 || req.CustomerID == 0 || req.Units.IsNegative() {
		return subscriptiondomain.Instance{}, ledgerdomain.Post{}, ledgerdomain.ErrInvalidPost
	}

	now := s.clock.Now(ctx)
	instance := subscriptiondomain.Instance{
		ID:             s.genID.Generate(),
		SubscriptionID: req.SubscriptionID,
		CustomerID:     req.CustomerID,
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		SKU:            strings.TrimSpace(req.SKU),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	post := ledgerdomain.Post{
		ID:         s.genID.Generate(),
		InstanceID: instance.ID,
		Units:      req.Units,
		UnitPrice:  req.UnitPrice,
		StartDate:  clock.Date(req.StartDate),
		Status:     ledgerdomain.PostStatusOpen,
		CreatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.subRepo.InsertInstance(ctx, tx, &instance); err != nil {
			return err
		}
		return s.repo.InsertPost(ctx, tx, &post)
	})
	if err != nil {
		return subscriptiondomain.Instance{}, ledgerdomain.Post{}, fmt.Errorf("provision instance: %w", err)
	}

	s.log.Info("instance provisioned",
		zap.String("instance_id", instance.ID.String()),
		zap.String("subscription_id", req.SubscriptionID.String()),
		zap.String("units", req.Units.String()),
	)
	return instance, post, nil
}

// Insert writes the first post of an instance, or a new post after the
// previous one was closed.
func (s *Store) Insert(ctx context.Context, post ledgerdomain.Post) (ledgerdomain.Post, error) {
	if post.InstanceID == 0 || post.Units.IsNegative() || post.StartDate.IsZero() {
		return ledgerdomain.Post{}, ledgerdomain.ErrInvalidPost
	}

	post.ID = s.genID.Generate()
	post.StartDate = clock.Date(post.StartDate)
	if post.EndDate != nil {
		end := clock.Date(*post.EndDate)
		post.EndDate = &end
	}
	post.Status = ledgerdomain.PostStatusOpen
	post.CreatedAt = s.clock.Now(ctx)

	err := s.withInstanceLock(ctx, post.InstanceID, func(tx *gorm.DB, posts []ledgerdomain.Post) error {
		if open := openPosts(posts); len(open) > 0 {
			return ledgerdomain.ErrOpenPostExists
		}
		return s.repo.InsertPost(ctx, tx, &post)
	})
	if err != nil {
		return ledgerdomain.Post{}, err
	}
	return post, nil
}

// Supersede closes the open post yesterday and opens a replacement today
// with the new quantity. The replacement inherits the old end date so a
// fixed-term post is not extended.
func (s *Store) Supersede(ctx context.Context, instanceID snowflake.ID, units, unitPrice decimal.Decimal) (ledgerdomain.SupersedeResult, error) {
	if units.IsNegative() {
		return ledgerdomain.SupersedeResult{}, ledgerdomain.ErrInvalidPost
	}

	today := clock.Today(ctx, s.clock)
	yesterday := today.AddDate(0, 0, -1)

	var result ledgerdomain.SupersedeResult
	err := s.withInstanceLock(ctx, instanceID, func(tx *gorm.DB, posts []ledgerdomain.Post) error {
		open := openPosts(posts)
		if len(open) == 0 || !open[0].InEffect(today) {
			return ledgerdomain.ErrNothingToSupersede
		}
		current := open[0]

		if err := s.repo.ClosePost(ctx, tx, current.ID, yesterday, ledgerdomain.PostStatusSuperseded); err != nil {
			return err
		}

		next := ledgerdomain.Post{
			ID:         s.genID.Generate(),
			InstanceID: instanceID,
			Units:      units,
			UnitPrice:  unitPrice,
			StartDate:  today,
			EndDate:    current.EndDate,
			Status:     ledgerdomain.PostStatusOpen,
			CreatedAt:  s.clock.Now(ctx),
		}
		if err := s.repo.InsertPost(ctx, tx, &next); err != nil {
			return err
		}

		current.EndDate = &yesterday
		current.Status = ledgerdomain.PostStatusSuperseded
		result = ledgerdomain.SupersedeResult{Closed: current, Opened: next}
		return nil
	})
	if err != nil {
		return ledgerdomain.SupersedeResult{}, err
	}

	s.log.Info("post superseded",
		zap.String("instance_id", instanceID.String()),
		zap.String("old_units", result.Closed.Units.String()),
		zap.String("new_units", units.String()),
	)
	return result, nil
}

// CloseAsInactive ends the open post at effectiveDate without a
// replacement. It returns nil when no open post exists.
func (s *Store) CloseAsInactive(ctx context.Context, instanceID snowflake.ID, effectiveDate time.Time) (*ledgerdomain.Post, error) {
	end := clock.Date(effectiveDate)

	var closed *ledgerdomain.Post
	err := s.withInstanceLock(ctx, instanceID, func(tx *gorm.DB, posts []ledgerdomain.Post) error {
		open := openPosts(posts)
		if len(open) == 0 {
			return nil
		}
		current := open[0]

		closeAt := end
		if closeAt.Before(current.StartDate) {
			closeAt = current.StartDate
		}
		if current.EndDate != nil && current.EndDate.Before(closeAt) {
			closeAt = *current.EndDate
		}

		if err := s.repo.ClosePost(ctx, tx, current.ID, closeAt, ledgerdomain.PostStatusInactive); err != nil {
			return err
		}
		current.EndDate = &closeAt
		current.Status = ledgerdomain.PostStatusInactive
		closed = &current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if closed != nil {
		s.log.Info("post closed as inactive",
			zap.String("instance_id", instanceID.String()),
			zap.Time("end_date", *closed.EndDate),
		)
	}
	return closed, nil
}

func (s *Store) MarkInvoiced(ctx context.Context, instanceID snowflake.ID, postIDs []snowflake.ID, at time.Time) error {
	return s.withInstanceLock(ctx, instanceID, func(tx *gorm.DB, _ []ledgerdomain.Post) error {
		if _, err := s.repo.MarkPostsInvoiced(ctx, tx, instanceID, postIDs, at); err != nil {
			return err
		}
		return s.subRepo.UpdateLastInvoiced(ctx, tx, instanceID, at)
	})
}

func (s *Store) VerifyInvariant(ctx context.Context, instanceID snowflake.ID) error {
	posts, err := s.ListPosts(ctx, instanceID)
	if err != nil {
		return err
	}
	if len(openPosts(posts)) > 1 {
		return ledgerdomain.ErrMultipleOpenPosts
	}

	active := make([]ledgerdomain.Post, 0, len(posts))
	for _, p := range posts {
		if !p.Void() {
			active = append(active, p)
		}
	}
	for i := 1; i < len(active); i++ {
		prev := active[i-1]
		if prev.EndDate == nil || !prev.EndDate.Before(active[i].StartDate) {
			return fmt.Errorf("%w: posts %s and %s overlap", ledgerdomain.ErrInvalidPost, prev.ID, active[i].ID)
		}
	}
	return nil
}

// withInstanceLock runs fn inside a transaction that holds both the
// distributed instance lock and the row lock. Lock and transaction failures
// surface as ErrWriteConflict so callers can retry.
func (s *Store) withInstanceLock(ctx context.Context, instanceID snowflake.ID, fn func(tx *gorm.DB, posts []ledgerdomain.Post) error) error {
	unlock, err := s.locker.Acquire(ctx, "instance:"+instanceID.String(), instanceLockTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ledgerdomain.ErrWriteConflict, err)
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.log.Warn("release instance lock failed", zap.String("instance_id", instanceID.String()), zap.Error(err))
		}
	}()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockInstance(ctx, tx, instanceID); err != nil {
			return err
		}
		posts, err := s.repo.ListPosts(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		posts = normalize(posts)
		if len(openPosts(posts)) > 1 {
			return ledgerdomain.ErrMultipleOpenPosts
		}
		return fn(tx, posts)
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ledgerdomain.ErrNothingToSupersede),
		errors.Is(err, ledgerdomain.ErrOpenPostExists),
		errors.Is(err, ledgerdomain.ErrInvalidPost),
		errors.Is(err, ledgerdomain.ErrMultipleOpenPosts),
		errors.Is(err, ledgerdomain.ErrWriteConflict),
		errors.Is(err, subscriptiondomain.ErrInstanceNotFound):
		return err
	}
	return fmt.Errorf("%w: %v", ledgerdomain.ErrWriteConflict, err)
}

// normalize pins every date to UTC midnight and sorts by start date.
func normalize(posts []ledgerdomain.Post) []ledgerdomain.Post {
	for i := range posts {
		posts[i].StartDate = clock.Date(posts[i].StartDate)
		if posts[i].EndDate != nil {
			end := clock.Date(*posts[i].EndDate)
			posts[i].EndDate = &end
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].StartDate.Equal(posts[j].StartDate) {
			return posts[i].ID < posts[j].ID
		}
		return posts[i].StartDate.Before(posts[j].StartDate)
	})
	return posts
}

func openPosts(posts []ledgerdomain.Post) []ledgerdomain.Post {
	var open []ledgerdomain.Post
	for _, p := range posts {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

func latest(posts []ledgerdomain.Post) (*ledgerdomain.Post, error) {
	open := openPosts(posts)
	switch len(open) {
	case 0:
	case 1:
		return &open[0], nil
	default:
		return nil, ledgerdomain.ErrMultipleOpenPosts
	}

	var last *ledgerdomain.Post
	for i := range posts {
		if posts[i].Void() {
			continue
		}
		last = &posts[i]
	}
	return last, nil
}
