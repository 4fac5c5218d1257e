package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/audit/masking"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	obscontext "github.com/jarednorman/solidus-friendly-promotions/internal/observability/context"
	"github.com/jarednorman/solidus-friendly-promotions/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	actorType := strings.TrimSpace(entry.ActorType)
	if actorType == "" {
		actorType = auditdomain.ActorSystem
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := masking.MaskFields(entry.Metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}
	if correlationID := correlation.ExtractCorrelationID(ctx); correlationID != "" {
		payload["correlation_id"] = correlationID
	}

	record := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    normalizePointer(entry.ActorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(&entry.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}

	db := entry.DB
	if db == nil {
		db = s.db
	}
	if err := s.repo.Insert(ctx, db, &record); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	if filter.StartAt != nil && filter.EndAt != nil && filter.StartAt.After(*filter.EndAt) {
		return nil, auditdomain.ErrInvalidTimeRange
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 250 {
		filter.Limit = 250
	}
	return s.repo.List(ctx, s.db, filter)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
