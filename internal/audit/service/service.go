package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/railzwaylabs/subsync/internal/audit/domain"
	"github.com/railzwaylabs/subsync/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

func NewService(p ServiceParam) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req auditdomain.RecordRequest) (auditdomain.CustomerLog, error) {
	entry := auditdomain.CustomerLog{
		ID:         s.genID.Generate(),
		CustomerID: req.CustomerID,
		EmployeeID: req.EmployeeID,
		Kind:       req.Kind,
		Message:    req.Message,
		Metadata:   datatypes.JSONMap(req.Metadata),
		CreatedAt:  s.clock.Now(ctx),
	}
	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		return auditdomain.CustomerLog{}, fmt.Errorf("record customer log: %w", err)
	}

	s.log.Debug("customer log recorded",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("kind", string(req.Kind)),
	)
	return entry, nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.CustomerLog, error) {
	return s.repo.List(ctx, s.db, filter)
}
