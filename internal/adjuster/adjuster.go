package adjuster

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/events"
	"github.com/jarednorman/solidus-friendly-promotions/internal/observability/metrics"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/ratelimit"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrRecalculationInProgress = errors.New("recalculation_in_progress")

// Adjuster recalculates the promotion adjustments and totals of one order.
type Adjuster interface {
	Adjust(ctx context.Context, orderID snowflake.ID) (*Result, error)
	// AdjustChecked runs check inside the recalculation transaction, after the
	// pass. An error from check rolls the whole pass back and is returned as is.
	AdjustChecked(ctx context.Context, orderID snowflake.ID, check Check) (*Result, error)
}

// Check inspects a finished pass before it commits.
type Check func(ctx context.Context, tx *gorm.DB, result *Result) error

// AppliedDiscount is one discount kept by the chooser during a pass.
type AppliedDiscount struct {
	PromotionID snowflake.ID     `json:"promotion_id"`
	ActionID    snowflake.ID     `json:"action_id"`
	Lane        promodomain.Lane `json:"lane"`
	Level       string           `json:"level"`
	ItemKind    orderdomain.Kind `json:"item_kind"`
	ItemID      snowflake.ID     `json:"item_id"`
	Label       string           `json:"label"`
	Amount      decimal.Decimal  `json:"amount"`
}

type Result struct {
	OrderID            snowflake.ID                       `json:"order_id"`
	Adjuster           string                             `json:"adjuster"`
	Skipped            bool                               `json:"skipped"`
	PreviousPromoTotal decimal.Decimal                    `json:"previous_promo_total"`
	PromoTotal         decimal.Decimal                    `json:"promo_total"`
	Total              decimal.Decimal                    `json:"total"`
	Eligibility        map[string]promodomain.Eligibility `json:"eligibility,omitempty"`
	Discounts          []AppliedDiscount                  `json:"discounts,omitempty"`
	Created            int                                `json:"created"`
	Updated            int                                `json:"updated"`
	Removed            int                                `json:"removed"`
	Connected          int                                `json:"connected"`
	Disconnected       int                                `json:"disconnected"`

	Order *orderdomain.Order `json:"-"`
}

// PromoTotalChanged reports whether the pass moved the order's promo total.
func (r *Result) PromoTotalChanged() bool {
	return !r.PreviousPromoTotal.Equal(r.PromoTotal)
}

func newResult(order *orderdomain.Order, mode string) *Result {
	return &Result{
		OrderID:            order.ID,
		Adjuster:           mode,
		PreviousPromoTotal: order.PromoTotal,
		PromoTotal:         order.PromoTotal,
		Total:              order.Total,
		Eligibility:        map[string]promodomain.Eligibility{},
		Order:              order,
	}
}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Config          config.Config
	Engine          *config.EngineConfigHolder
	Clock           clock.Clock
	Orders          orderdomain.Repository
	Promotions      promodomain.Repository
	Guard           *ratelimit.OrderGuard    `optional:"true"`
	Publisher       events.Publisher         `optional:"true"`
	Metrics         *metrics.Metrics         `optional:"true"`
	AdjusterMetrics *metrics.AdjusterMetrics `optional:"true"`
}

// pass runs inside the recalculation transaction.
type pass interface {
	run(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*Result, error)
}

type adjuster struct {
	db         *gorm.DB
	log        *zap.Logger
	mode       string
	pass       pass
	guard      *ratelimit.OrderGuard
	publisher  events.Publisher
	metrics    *metrics.Metrics
	adjMetrics *metrics.AdjusterMetrics
	tracer     trace.Tracer
}

// New selects the implementation named by PROMOTION_ADJUSTER.
func New(p Params) Adjuster {
	mode := p.Config.Adjuster
	a := &adjuster{
		db:         p.DB,
		log:        p.Log.Named("adjuster.service"),
		mode:       mode,
		guard:      p.Guard,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
		adjMetrics: p.AdjusterMetrics,
		tracer:     otel.Tracer("promotions/adjuster"),
	}
	if a.publisher == nil {
		a.publisher = events.NewNopPublisher()
	}
	switch mode {
	case config.AdjusterLegacy:
		a.pass = &legacy{orders: p.Orders}
	default:
		a.mode = config.AdjusterFriendly
		a.pass = &friendly{
			genID:      p.GenID,
			engine:     p.Engine,
			clock:      p.Clock,
			orders:     p.Orders,
			promotions: p.Promotions,
		}
	}
	return a
}

func (a *adjuster) Adjust(ctx context.Context, orderID snowflake.ID) (*Result, error) {
	return a.AdjustChecked(ctx, orderID, nil)
}

func (a *adjuster) AdjustChecked(ctx context.Context, orderID snowflake.ID, check Check) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "adjuster.Adjust", trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("adjuster", a.mode),
	))
	defer span.End()

	start := time.Now()
	result, err := a.adjust(ctx, orderID, check)
	a.observe(ctx, time.Since(start), result, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("skipped", result.Skipped),
		attribute.Int("adjustments.created", result.Created),
		attribute.Int("adjustments.updated", result.Updated),
		attribute.Int("adjustments.removed", result.Removed),
	)
	a.publish(ctx, result)
	return result, nil
}

func (a *adjuster) adjust(ctx context.Context, orderID snowflake.ID, check Check) (*Result, error) {
	if a.guard.Enabled() {
		key := orderID.String()
		token, ok, err := a.guard.TryLockOrder(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRecalculationInProgress
		}
		defer func() {
			if err := a.guard.ReleaseOrder(context.WithoutCancel(ctx), key, token); err != nil {
				a.log.Warn("failed to release order lock", zap.String("order_id", key), zap.Error(err))
			}
		}()
	}

	var result *Result
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = a.pass.run(ctx, tx, orderID)
		if err != nil || check == nil {
			return err
		}
		return check(ctx, tx, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *adjuster) observe(ctx context.Context, elapsed time.Duration, result *Result, err error) {
	a.adjMetrics.ObserveDuration(a.mode, elapsed)
	var rejected promodomain.ValidationErrors
	if errors.As(err, &rejected) {
		a.metrics.RecordRecalculation(ctx, a.mode, "rejected")
		a.log.Info("order recalculation rolled back", zap.Error(rejected))
		return
	}
	if err != nil {
		reason := metrics.ClassifyReason(err)
		if errors.Is(err, ErrRecalculationInProgress) {
			reason = metrics.ReasonInProgress
		}
		a.adjMetrics.IncError(a.mode, reason)
		a.metrics.RecordRecalculation(ctx, a.mode, "error")
		a.log.Warn("order recalculation failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	if result.Skipped {
		a.metrics.RecordRecalculation(ctx, a.mode, "skipped")
		return
	}
	a.metrics.RecordRecalculation(ctx, a.mode, "ok")
	a.adjMetrics.AddAdjustments("created", result.Created)
	a.adjMetrics.AddAdjustments("updated", result.Updated)
	a.adjMetrics.AddAdjustments("removed", result.Removed)
	for _, d := range result.Discounts {
		amount, _ := d.Amount.Float64()
		a.metrics.RecordDiscount(ctx, string(d.Lane), d.Level, amount)
	}
}

func (a *adjuster) publish(ctx context.Context, result *Result) {
	if result.Skipped {
		return
	}
	event := events.Event{
		Type: events.TypePromotionsRecalculated,
		Key:  result.OrderID.String(),
		Payload: events.RecalculatedPayload(
			result.OrderID.String(),
			result.PromoTotal,
			result.Total,
			result.Created,
			result.Updated,
			result.Removed,
		),
	}
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.log.Warn("failed to publish recalculation event", zap.String("order_id", result.OrderID.String()), zap.Error(err))
	}
}

// load fetches the order under a row lock, or fails with ErrNotFound.
func load(ctx context.Context, tx *gorm.DB, orders orderdomain.Repository, orderID snowflake.ID) (*orderdomain.Order, error) {
	order, err := orders.LoadForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return order, nil
}
