package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jarednorman/solidus-friendly-promotions/internal/adjuster"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/events"
	"github.com/jarednorman/solidus-friendly-promotions/internal/observability/metrics"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/engine"
	"github.com/jarednorman/solidus-friendly-promotions/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("checkout.service",
	fx.Provide(New),
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Engine     *config.EngineConfigHolder
	Adjuster   adjuster.Adjuster
	Orders     orderdomain.Repository
	Promotions promodomain.Repository
	Guard      *ratelimit.OrderGuard `optional:"true"`
	Audit      auditdomain.Service   `optional:"true"`
	Publisher  events.Publisher      `optional:"true"`
	Metrics    *metrics.Metrics      `optional:"true"`
}

// Service hooks the promotion engine into the host checkout.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	engine     *config.EngineConfigHolder
	adjuster   adjuster.Adjuster
	orders     orderdomain.Repository
	promotions promodomain.Repository
	guard      *ratelimit.OrderGuard
	audit      auditdomain.Service
	publisher  events.Publisher
	metrics    *metrics.Metrics
}

func New(p Params) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		engine:     p.Engine,
		adjuster:   p.Adjuster,
		orders:     p.Orders,
		promotions: p.Promotions,
		guard:      p.Guard,
		audit:      p.Audit,
		publisher:  publisher,
		metrics:    p.Metrics,
	}
}

// EnsurePromotionsEligible recalculates the order and, when its promo total
// moved after checkout started, returns false with ValidationErrors. The order
// is sent back to the cart in the same transaction as the recalculation. When
// restarting is disabled the recalculation is rolled back, so the order keeps
// the totals it was charged with.
func (s *Service) EnsurePromotionsEligible(ctx context.Context, orderID snowflake.ID) (bool, error) {
	restart := s.engine.Get().RestartCheckoutOnDrift
	var (
		drifted bool
		from    orderdomain.State
	)
	result, err := s.adjuster.AdjustChecked(ctx, orderID, func(ctx context.Context, tx *gorm.DB, result *adjuster.Result) error {
		order := result.Order
		if result.Skipped || !result.PromoTotalChanged() || !order.CheckoutStarted() {
			return nil
		}
		drifted = true
		if !restart {
			return driftErrors()
		}
		from = order.State
		order.RestartCheckout()
		if err := s.orders.UpdateState(ctx, tx, order); err != nil {
			return err
		}
		return s.record(ctx, tx, auditdomain.ActionCheckoutRestarted, order.ID, map[string]any{
			"from_state":           string(from),
			"previous_promo_total": result.PreviousPromoTotal.StringFixed(2),
			"promo_total":          result.PromoTotal.StringFixed(2),
		})
	})
	if err != nil {
		var verrs promodomain.ValidationErrors
		if drifted && errors.As(err, &verrs) {
			s.log.Warn("promotion total changed after checkout started, recalculation discarded",
				zap.String("order_id", orderID.String()),
			)
			return false, verrs
		}
		return false, err
	}
	if !drifted {
		return true, nil
	}

	s.metrics.RecordCheckoutRestart(ctx, string(from))
	s.log.Info("checkout restarted after promotion total changed",
		zap.String("order_id", result.OrderID.String()),
		zap.String("from_state", string(from)),
	)
	s.publish(ctx, events.TypeCheckoutRestarted, result.OrderID, map[string]any{
		"order_id":   result.OrderID.String(),
		"from_state": string(from),
	})
	return false, driftErrors()
}

func driftErrors() promodomain.ValidationErrors {
	return promodomain.ValidationErrors{{
		Field:   "promo_total",
		Code:    CodePromotionTotalChanged,
		Message: "promotion total changed before completing the order",
	}}
}

// ApplyCode connects the promotion behind value to the order and recalculates it.
func (s *Service) ApplyCode(ctx context.Context, orderID snowflake.ID, value string) (*adjuster.Result, error) {
	limit, err := s.guard.AllowCouponAttempt(ctx, orderID.String())
	if err != nil {
		return nil, err
	}
	if !limit.Allowed {
		s.metrics.RecordCouponApplication(ctx, ErrCouponAttemptsExceeded.Error())
		return nil, ErrCouponAttemptsExceeded
	}

	var code *promodomain.PromotionCode
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		code, err = s.connect(ctx, tx, orderID, value)
		return err
	})
	if err != nil {
		s.metrics.RecordCouponApplication(ctx, outcome(err))
		return nil, err
	}

	result, err := s.adjuster.Adjust(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCouponApplication(ctx, "applied")
	s.publish(ctx, events.TypeCouponApplied, orderID, map[string]any{
		"order_id":     orderID.String(),
		"promotion_id": code.PromotionID.String(),
		"code_id":      code.ID.String(),
	})
	return result, nil
}

func (s *Service) connect(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, value string) (*promodomain.PromotionCode, error) {
	order, err := s.orders.Load(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	code, err := s.findCode(ctx, tx, value)
	if err != nil {
		return nil, err
	}

	links, err := s.promotions.OrderPromotions(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if link.PromotionID == code.PromotionID && link.PromotionCodeID != nil {
			return nil, ErrCouponCodeAlreadyPresent
		}
	}

	record, err := s.promotions.Load(ctx, tx, code.PromotionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrCouponCodeNotFound
	}
	now := s.clock.Now()
	switch {
	case record.NotStarted(now):
		return nil, ErrCouponCodeNotStarted
	case record.Expired(now):
		return nil, ErrCouponCodeExpired
	}

	promo, err := engine.Build(record)
	if err != nil {
		return nil, err
	}
	evaluator := engine.NewEvaluatorFor(tx, s.orders, s.promotions)
	excluded := []snowflake.ID{order.ID}
	exceeded, err := evaluator.CodeUsageLimitExceeded(ctx, record, code.ID, excluded)
	if err != nil {
		return nil, err
	}
	if !exceeded {
		if exceeded, err = evaluator.UsageLimitExceeded(ctx, record, excluded); err != nil {
			return nil, err
		}
	}
	if exceeded {
		return nil, ErrCouponCodeMaxUsage
	}

	elig, err := evaluator.Eligible(ctx, promo, order, now)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, &NotEligibleError{Errors: elig.Errors}
	}

	// a code-less automatic link is superseded by the code
	var superseded []snowflake.ID
	for _, link := range links {
		if link.PromotionID == code.PromotionID {
			superseded = append(superseded, link.ID)
		}
	}
	if err := s.promotions.DeleteOrderPromotions(ctx, tx, superseded); err != nil {
		return nil, err
	}
	if err := s.promotions.InsertOrderPromotion(ctx, tx, &promodomain.OrderPromotion{
		ID:              s.genID.Generate(),
		OrderID:         orderID,
		PromotionID:     code.PromotionID,
		PromotionCodeID: &code.ID,
		CreatedAt:       now,
	}); err != nil {
		return nil, err
	}
	return code, s.record(ctx, tx, auditdomain.ActionCouponApplied, orderID, map[string]any{
		"code":         code.Value,
		"promotion_id": code.PromotionID.String(),
	})
}

// RemoveCode disconnects the code's promotion from the order and recalculates it.
func (s *Service) RemoveCode(ctx context.Context, orderID snowflake.ID, value string) (*adjuster.Result, error) {
	var code *promodomain.PromotionCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		code, err = s.findCode(ctx, tx, value)
		if err != nil {
			return err
		}
		links, err := s.promotions.OrderPromotions(ctx, tx, orderID)
		if err != nil {
			return err
		}
		var ids []snowflake.ID
		for _, link := range links {
			if link.PromotionCodeID != nil && *link.PromotionCodeID == code.ID {
				ids = append(ids, link.ID)
			}
		}
		if len(ids) == 0 {
			return ErrCouponCodeNotPresent
		}
		if err := s.promotions.DeleteOrderPromotions(ctx, tx, ids); err != nil {
			return err
		}
		return s.record(ctx, tx, auditdomain.ActionCouponRemoved, orderID, map[string]any{
			"code":         code.Value,
			"promotion_id": code.PromotionID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	result, err := s.adjuster.Adjust(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeCouponRemoved, orderID, map[string]any{
		"order_id":     orderID.String(),
		"promotion_id": code.PromotionID.String(),
		"code_id":      code.ID.String(),
	})
	return result, nil
}

func (s *Service) findCode(ctx context.Context, tx *gorm.DB, value string) (*promodomain.PromotionCode, error) {
	if promodomain.NormalizeCode(value) == "" {
		return nil, ErrCouponCodeNotFound
	}
	code, err := s.promotions.FindCode(ctx, tx, value)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrCouponCodeNotFound
	}
	return code, nil
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, action string, orderID snowflake.ID, metadata map[string]any) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, auditdomain.Entry{
		DB:         tx,
		ActorType:  auditdomain.ActorSystem,
		Action:     action,
		TargetType: auditdomain.TargetOrder,
		TargetID:   orderID.String(),
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, orderID snowflake.ID, payload map[string]any) {
	if err := s.publisher.Publish(ctx, events.Event{Type: eventType, Key: orderID.String(), Payload: payload}); err != nil {
		s.log.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

func outcome(err error) string {
	for _, known := range []error{
		ErrCouponCodeNotFound,
		ErrCouponCodeExpired,
		ErrCouponCodeNotStarted,
		ErrCouponCodeAlreadyPresent,
		ErrCouponCodeMaxUsage,
		ErrCouponCodeNotEligible,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}
