package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/railzwaylabs/subsync/internal/billingcycle/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	eligibilitydomain "github.com/railzwaylabs/subsync/internal/eligibility/domain"
	ledgerdomain "github.com/railzwaylabs/subsync/internal/ledger/domain"
	subscriptiondomain "github.com/railzwaylabs/subsync/internal/subscription/domain"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock   clock.Clock
	subRepo subscriptiondomain.Repository
	store   ledgerdomain.Store
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	SubRepo subscriptiondomain.Repository
	Store   ledgerdomain.Store
}

func NewService(p ServiceParam) eligibilitydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("eligibility.service"),

		clock:   p.Clock,
		subRepo: p.SubRepo,
		store:   p.Store,
	}
}

func (s *Service) Eligible(ctx context.Context, customerID snowflake.ID) ([]eligibilitydomain.Group, error) {
	rows, err := s.subRepo.ListInstancesByCustomer(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}

	today := clock.Today(ctx, s.clock)
	subscriptions := map[snowflake.ID]*subscriptiondomain.Subscription{}
	var eligible []eligibilitydomain.Instance

	for _, row := range rows {
		sub, err := s.subscription(ctx, subscriptions, row.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub == nil || !sub.Active {
			continue
		}

		period, err := billingcycledomain.ComputePeriod(row.PaymentFrequency, today)
		if err != nil {
			s.log.Warn("instance skipped",
				zap.String("instance_id", row.ID.String()),
				zap.String("frequency", string(row.PaymentFrequency)),
				zap.Error(err),
			)
			continue
		}

		posts, err := s.store.PostsOverlapping(ctx, row.ID, period, row.LastInvoicedAt)
		if err != nil {
			return nil, fmt.Errorf("select posts for instance %s: %w", row.ID, err)
		}
		if !invoiceable(posts, period) {
			continue
		}
		eligible = append(eligible, eligibilitydomain.Instance{Instance: row, Period: period, Posts: posts})
	}

	return s.nest(ctx, eligible, subscriptions)
}

func (s *Service) MarkInvoiced(ctx context.Context, groups []eligibilitydomain.Group) (int, error) {
	now := s.clock.Now(ctx)
	count := 0
	for _, g := range groups {
		for _, sub := range g.Subscriptions {
			for _, inst := range sub.Instances {
				ids := lo.Map(inst.Posts, func(p ledgerdomain.Post, _ int) snowflake.ID { return p.ID })
				if err := s.store.MarkInvoiced(ctx, inst.Instance.ID, ids, now); err != nil {
					return count, fmt.Errorf("mark instance %s invoiced: %w", inst.Instance.ID, err)
				}
				count++
			}
		}
	}
	return count, nil
}

// invoiceable requires at least one post, every post billing a positive
// quantity and none already invoiced within period.
func invoiceable(posts []ledgerdomain.Post, period billingcycledomain.Period) bool {
	if len(posts) == 0 {
		return false
	}
	return lo.EveryBy(posts, func(p ledgerdomain.Post) bool { return p.Units.IsPositive() }) &&
		lo.NoneBy(posts, func(p ledgerdomain.Post) bool { return p.InvoicedSince(period.Start) })
}

func (s *Service) subscription(ctx context.Context, cache map[snowflake.ID]*subscriptiondomain.Subscription, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if sub, ok := cache[id]; ok {
		return sub, nil
	}
	sub, err := s.subRepo.FindSubscriptionByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	cache[id] = sub
	return sub, nil
}

func (s *Service) nest(ctx context.Context, instances []eligibilitydomain.Instance, subs map[snowflake.ID]*subscriptiondomain.Subscription) ([]eligibilitydomain.Group, error) {
	if len(instances) == 0 {
		return nil, nil
	}

	bySub := lo.GroupBy(instances, func(i eligibilitydomain.Instance) snowflake.ID { return i.Instance.SubscriptionID })
	byGroup := lo.GroupBy(lo.Keys(bySub), func(id snowflake.ID) snowflake.ID { return subs[id].GroupID })

	groupIDs := lo.Keys(byGroup)
	groups, err := s.subRepo.ListGroups(ctx, s.db, groupIDs)
	if err != nil {
		return nil, err
	}
	known := lo.KeyBy(groups, func(g subscriptiondomain.Group) snowflake.ID { return g.ID })

	out := make([]eligibilitydomain.Group, 0, len(byGroup))
	for _, gid := range sortedIDs(groupIDs) {
		group, ok := known[gid]
		if !ok {
			group = subscriptiondomain.Group{ID: gid}
		}

		entry := eligibilitydomain.Group{Group: group}
		for _, sid := range sortedIDs(byGroup[gid]) {
			members := bySub[sid]
			sort.Slice(members, func(i, j int) bool { return members[i].Instance.ID < members[j].Instance.ID })
			entry.Subscriptions = append(entry.Subscriptions, eligibilitydomain.Subscription{
				Subscription: *subs[sid],
				Instances:    members,
			})
		}
		out = append(out, entry)
	}
	return out, nil
}

func sortedIDs(ids []snowflake.ID) []snowflake.ID {
	out := append([]snowflake.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
