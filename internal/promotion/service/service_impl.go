package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/cache"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/action"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/engine"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/rule"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
	Clock     clock.Clock
	Engine    *config.EngineConfigHolder
	Cache     cache.PromotionCache `optional:"true"`
	Audit     auditdomain.Service  `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	orderRepo orderdomain.Repository
	clock     clock.Clock
	engine    *config.EngineConfigHolder
	cache     cache.PromotionCache
	audit     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("promotion.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
		clock:     p.Clock,
		engine:    p.Engine,
		cache:     p.Cache,
		audit:     p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePromotionRequest) (*domain.Promotion, error) {
	now := s.clock.Now()
	promo := &domain.Promotion{
		ID:                 s.genID.Generate(),
		Name:               req.Name,
		Description:        req.Description,
		CustomerLabel:      req.CustomerLabel,
		Path:               req.Path,
		Lane:               req.Lane,
		MatchPolicy:        req.MatchPolicy,
		UsageLimit:         req.UsageLimit,
		PerCodeUsageLimit:  req.PerCodeUsageLimit,
		StartsAt:           req.StartsAt,
		ExpiresAt:          req.ExpiresAt,
		ApplyAutomatically: req.ApplyAutomatically,
		Advertise:          req.Advertise,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if strings.TrimSpace(req.CategoryID) != "" {
		categoryID, err := parseID(req.CategoryID)
		if err != nil {
			return nil, err
		}
		promo.CategoryID = &categoryID
	}

	promo.Normalize()
	if err := promo.Validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, promo); err != nil {
			return err
		}
		return s.record(ctx, tx, auditdomain.ActionPromotionCreated, promo.ID, map[string]any{
			"name": promo.Name,
			"lane": string(promo.Lane),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	s.log.Info("promotion created", zap.String("promotion_id", promo.ID.String()), zap.String("lane", string(promo.Lane)))
	return promo, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Promotion, error) {
	promoID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	promo, err := s.repo.Load(ctx, s.db, promoID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, domain.ErrNotFound
	}
	return promo, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPromotionRequest) ([]*domain.Promotion, error) {
	filter := domain.ListFilter{
		Advertised: req.Advertised,
		Coupons:    req.Coupons,
		HasActions: req.HasActions,
		ActiveAt:   req.ActiveAt,
		Automatic:  req.Automatic,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	if strings.TrimSpace(req.CategoryID) != "" {
		categoryID, err := parseID(req.CategoryID)
		if err != nil {
			return nil, err
		}
		filter.CategoryID = &categoryID
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 250 {
		filter.Limit = 250
	}
	return s.repo.List(ctx, s.db, filter)
}

// Advertised lists promotions flagged for display that are active now.
func (s *Service) Advertised(ctx context.Context) ([]*domain.Promotion, error) {
	if s.cache != nil {
		if promos, ok := s.cache.GetAdvertised(""); ok {
			return promos, nil
		}
	}
	now := s.clock.Now()
	promos, err := s.repo.List(ctx, s.db, domain.ListFilter{Advertised: true, ActiveAt: &now})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetAdvertised("", promos)
	}
	return promos, nil
}

func (s *Service) Destroy(ctx context.Context, id string) error {
	promoID, err := parseID(id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Destroy(ctx, tx, promoID); err != nil {
			return err
		}
		return s.record(ctx, tx, auditdomain.ActionPromotionDestroyed, promoID, nil)
	})
	if err != nil {
		return err
	}
	s.invalidate()
	s.log.Info("promotion destroyed", zap.String("promotion_id", promoID.String()))
	return nil
}

func (s *Service) AddRule(ctx context.Context, req domain.AddRuleRequest) (*domain.PromotionRule, error) {
	promo, err := s.find(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	record := &domain.PromotionRule{
		ID:          s.genID.Generate(),
		PromotionID: promo.ID,
		Type:        strings.TrimSpace(req.Type),
		Preferences: datatypes.JSON(req.Preferences),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := rule.New(record); err != nil {
		return nil, err
	}
	if err := s.repo.InsertRule(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) RemoveRule(ctx context.Context, promotionID, ruleID string) error {
	promoID, err := parseID(promotionID)
	if err != nil {
		return err
	}
	id, err := parseID(ruleID)
	if err != nil {
		return err
	}
	return s.repo.DeleteRule(ctx, s.db, promoID, id)
}

func (s *Service) AddAction(ctx context.Context, req domain.AddActionRequest) (*domain.PromotionAction, error) {
	promo, err := s.find(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	record := &domain.PromotionAction{
		ID:                    s.genID.Generate(),
		PromotionID:           &promo.ID,
		Type:                  strings.TrimSpace(req.Type),
		CalculatorType:        strings.TrimSpace(req.CalculatorType),
		CalculatorPreferences: datatypes.JSON(req.CalculatorPreferences),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if _, err := action.New(record, promo); err != nil {
		return nil, err
	}
	if err := s.repo.InsertAction(ctx, s.db, record); err != nil {
		return nil, err
	}
	s.invalidate()
	return record, nil
}

func (s *Service) RemoveAction(ctx context.Context, promotionID, actionID string) error {
	promoID, err := parseID(promotionID)
	if err != nil {
		return err
	}
	id, err := parseID(actionID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orderIDs, err := s.repo.DeleteAction(ctx, tx, promoID, id)
		if err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, orderIDs)
	})
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// refreshTotals recomputes the totals of orders whose adjustments were dropped.
func (s *Service) refreshTotals(ctx context.Context, tx *gorm.DB, orderIDs []snowflake.ID) error {
	for _, orderID := range orderIDs {
		order, err := s.orderRepo.LoadForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			continue
		}
		order.RecalculateTotals()
		if err := s.orderRepo.SaveTotals(ctx, tx, order); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) AddCodes(ctx context.Context, req domain.AddCodesRequest) ([]*domain.PromotionCode, error) {
	promo, err := s.find(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}
	if err := promo.ValidateCodable(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	codes := make([]*domain.PromotionCode, 0, len(req.Values))
	seen := make(map[string]bool, len(req.Values))
	for _, raw := range req.Values {
		value := domain.NormalizeCode(raw)
		if value == "" {
			return nil, domain.ValidationErrors{{Field: "values", Code: "blank", Message: "can't be blank"}}
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		codes = append(codes, &domain.PromotionCode{
			ID:          s.genID.Generate(),
			PromotionID: promo.ID,
			Value:       value,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(codes) == 0 {
		return nil, domain.ValidationErrors{{Field: "values", Code: "blank", Message: "can't be blank"}}
	}
	if err := s.repo.InsertCodes(ctx, s.db, codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// CreateCodeBatch generates NumberOfCodes random codes sharing BaseCode. A
// failed generation leaves the batch in the failed state with its error.
func (s *Service) CreateCodeBatch(ctx context.Context, req domain.CreateCodeBatchRequest) (*domain.PromotionCodeBatch, error) {
	promo, err := s.find(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}
	if err := promo.ValidateCodable(); err != nil {
		return nil, err
	}
	cfg := s.engine.Get()
	join := req.JoinCharacters
	if join == "" {
		join = cfg.CodeBatchJoin
	}
	base := domain.NormalizeCode(req.BaseCode)
	if base == "" || req.NumberOfCodes <= 0 {
		return nil, domain.ErrInvalidCodeBatch
	}

	now := s.clock.Now()
	batch := &domain.PromotionCodeBatch{
		ID:             s.genID.Generate(),
		PromotionID:    promo.ID,
		BaseCode:       base,
		NumberOfCodes:  req.NumberOfCodes,
		JoinCharacters: join,
		State:          domain.CodeBatchPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertCodeBatch(ctx, s.db, batch); err != nil {
		return nil, err
	}

	genErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		codes := make([]*domain.PromotionCode, 0, batch.NumberOfCodes)
		for _, value := range generateCodes(base, join, cfg.CodeBatchLength, batch.NumberOfCodes) {
			codes = append(codes, &domain.PromotionCode{
				ID:          s.genID.Generate(),
				PromotionID: promo.ID,
				Value:       value,
				BatchID:     &batch.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		return s.repo.InsertCodes(ctx, tx, codes)
	})

	batch.State = domain.CodeBatchCompleted
	if genErr != nil {
		msg := genErr.Error()
		batch.State = domain.CodeBatchFailed
		batch.Error = &msg
		s.log.Warn("code batch failed", zap.String("batch_id", batch.ID.String()), zap.Error(genErr))
	}
	batch.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateCodeBatch(ctx, s.db, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// generateCodes returns n distinct codes of the form <base><join><random>.
func generateCodes(base, join string, length, n int) []string {
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:length]
		value := base + join + suffix
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func (s *Service) Usage(ctx context.Context, id string) (domain.Usage, error) {
	promo, err := s.find(ctx, id)
	if err != nil {
		return domain.Usage{}, err
	}
	count, err := s.repo.UsageCount(ctx, s.db, promo.ID, nil)
	if err != nil {
		return domain.Usage{}, err
	}
	return domain.Usage{
		PromotionID:        promo.ID.String(),
		UsageCount:         count,
		UsageLimit:         promo.UsageLimit,
		UsageLimitExceeded: promo.UsageLimit != nil && count >= int64(*promo.UsageLimit),
	}, nil
}

// Eligibility evaluates the promotion against an order without changing it.
func (s *Service) Eligibility(ctx context.Context, promotionID, orderID string) (domain.Eligibility, error) {
	record, err := s.Get(ctx, promotionID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	oid, err := parseID(orderID)
	if err != nil {
		return domain.Eligibility{}, err
	}
	order, err := s.orderRepo.Load(ctx, s.db, oid)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if order == nil {
		return domain.Eligibility{}, orderdomain.ErrNotFound
	}

	promo, err := engine.Build(record)
	if err != nil {
		return domain.Eligibility{}, err
	}
	evaluator := engine.NewEvaluatorFor(s.db, s.orderRepo, s.repo)
	return evaluator.Eligible(ctx, promo, order, s.clock.Now())
}

func (s *Service) find(ctx context.Context, id string) (*domain.Promotion, error) {
	promoID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	promo, err := s.repo.FindByID(ctx, s.db, promoID)
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, domain.ErrNotFound
	}
	return promo, nil
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, act string, id snowflake.ID, metadata map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, auditdomain.Entry{
		DB:         tx,
		Action:     act,
		TargetType: auditdomain.TargetPromotion,
		TargetID:   id.String(),
		Metadata:   metadata,
	})
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidID, value)
	}
	return id, nil
}
