package adjuster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/events"
	"github.com/jarednorman/solidus-friendly-promotions/internal/migration"
	"github.com/jarednorman/solidus-friendly-promotions/internal/observability/metrics"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	orderrepository "github.com/jarednorman/solidus-friendly-promotions/internal/order/repository"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/action"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/engine"
	promorepository "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	orders     orderdomain.Repository
	promotions promodomain.Repository
	publisher  *recordingPublisher
	engine     *config.EngineConfigHolder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &fixture{
		db:         conn,
		node:       node,
		clock:      clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)),
		orders:     orderrepository.Provide(),
		promotions: promorepository.Provide(),
		publisher:  &recordingPublisher{},
		engine:     config.NewStaticEngineConfigHolder(config.DefaultEngineConfig()),
	}
}

func (f *fixture) adjuster(mode string) Adjuster {
	return New(Params{
		DB:         f.db,
		Log:        zap.NewNop(),
		GenID:      f.node,
		Config:     config.Config{Adjuster: mode},
		Engine:     f.engine,
		Clock:      f.clock,
		Orders:     f.orders,
		Promotions: f.promotions,
		Publisher:  f.publisher,
		Metrics:    metrics.Noop(),
	})
}

func (f *fixture) promotion(t *testing.T, calculatorType, prefs string, mutate func(p *promodomain.Promotion)) *promodomain.Promotion {
	t.Helper()
	p := &promodomain.Promotion{
		ID:                 f.node.Generate(),
		Name:               "Spring",
		CustomerLabel:      "Spring",
		Lane:               promodomain.LaneDefault,
		MatchPolicy:        promodomain.MatchAll,
		ApplyAutomatically: true,
		Actions: []*promodomain.PromotionAction{{
			ID:                    f.node.Generate(),
			Type:                  "adjust_line_item",
			CalculatorType:        calculatorType,
			CalculatorPreferences: datatypes.JSON(prefs),
		}},
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.promotions.Insert(context.Background(), f.db, p))
	return p
}

func (f *fixture) order(t *testing.T, prices ...string) *orderdomain.Order {
	t.Helper()
	o := &orderdomain.Order{
		ID:     f.node.Generate(),
		Number: "R" + f.node.Generate().String(),
		State:  orderdomain.StateCart,
	}
	for i, price := range prices {
		o.LineItems = append(o.LineItems, &orderdomain.LineItem{
			ID:        f.node.Generate(),
			ProductID: snowflake.ID(i + 1),
			Quantity:  1,
			Price:     decimal.RequireFromString(price),
		})
	}
	require.NoError(t, f.orders.Insert(context.Background(), f.db, o))
	return o
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	o, err := f.orders.Load(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func amounts(o *orderdomain.Order) []string {
	out := make([]string, 0, len(o.Adjustments))
	for _, adj := range o.Adjustments {
		out = append(out, adj.Amount.StringFixed(2))
	}
	return out
}

func TestAdjustAppliesPercentToEveryLineItem(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	promo := f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "10", "40")

	result, err := f.adjuster(config.AdjusterFriendly).Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Connected)
	assert.True(t, result.Eligibility[promo.ID.String()].Eligible)
	assert.Equal(t, "-10.00", result.PromoTotal.StringFixed(2))
	assert.True(t, result.PromoTotalChanged())

	loaded := f.reload(t, o.ID)
	assert.ElementsMatch(t, []string{"-2.00", "-8.00"}, amounts(loaded))
	for _, adj := range loaded.Adjustments {
		assert.True(t, adj.Eligible)
		assert.Equal(t, "Promotion (Spring)", adj.Label)
		assert.Equal(t, promo.Actions[0].ID, adj.SourceID)
	}
	assert.Equal(t, "50.00", loaded.ItemTotal.StringFixed(2))
	assert.Equal(t, "-10.00", loaded.PromoTotal.StringFixed(2))
	assert.Equal(t, "40.00", loaded.Total.StringFixed(2))

	links, err := f.promotions.OrderPromotions(ctx, f.db, o.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, promo.ID, links[0].PromotionID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypePromotionsRecalculated, f.publisher.events[0].Type)
	assert.Equal(t, o.ID.String(), f.publisher.events[0].Key)
}

func TestAdjustAfterRemovingActionRemovesAdjustments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	promo := f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "10", "40")
	adj := f.adjuster(config.AdjusterFriendly)

	_, err := adj.Adjust(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, f.reload(t, o.ID).Adjustments, 2)

	_, err = f.promotions.DeleteAction(ctx, f.db, promo.ID, promo.Actions[0].ID)
	require.NoError(t, err)
	result, err := adj.Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", result.PromoTotal.StringFixed(2))

	loaded := f.reload(t, o.ID)
	assert.Empty(t, loaded.Adjustments)
	assert.Equal(t, "50.00", loaded.Total.StringFixed(2))
}

func TestAdjustIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "10", "40")
	adj := f.adjuster(config.AdjusterFriendly)

	_, err := adj.Adjust(ctx, o.ID)
	require.NoError(t, err)
	first := f.reload(t, o.ID)

	f.clock.Advance(time.Minute)
	result, err := adj.Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Updated)
	assert.Zero(t, result.Removed)
	assert.Zero(t, result.Connected)
	assert.False(t, result.PromoTotalChanged())

	second := f.reload(t, o.ID)
	require.Len(t, second.Adjustments, len(first.Adjustments))
	for i := range first.Adjustments {
		assert.Equal(t, first.Adjustments[i].ID, second.Adjustments[i].ID)
		assert.True(t, first.Adjustments[i].Amount.Equal(second.Adjustments[i].Amount))
		assert.True(t, first.Adjustments[i].UpdatedAt.Equal(second.Adjustments[i].UpdatedAt))
	}
	assert.True(t, first.Total.Equal(second.Total))
}

func TestAdjustAppliesPreLaneBeforeDefault(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// created first so id order alone would put it ahead of the pre lane
	half := f.promotion(t, "percent", `{"percent": 50}`, nil)
	flat := f.promotion(t, "flat_rate", `{"amount": "5"}`, func(p *promodomain.Promotion) {
		p.Lane = promodomain.LanePre
	})
	o := f.order(t, "10")

	result, err := f.adjuster(config.AdjusterFriendly).Adjust(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, result.Discounts, 2)
	assert.Equal(t, flat.ID, result.Discounts[0].PromotionID)
	assert.Equal(t, promodomain.LanePre, result.Discounts[0].Lane)
	assert.Equal(t, "-5.00", result.Discounts[0].Amount.StringFixed(2))
	assert.Equal(t, half.ID, result.Discounts[1].PromotionID)
	assert.Equal(t, "-2.50", result.Discounts[1].Amount.StringFixed(2))
	assert.Equal(t, "2.50", f.reload(t, o.ID).Total.StringFixed(2))
}

func TestAdjustChooserBestAndAll(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.promotion(t, "percent", `{"percent": 10}`, nil)
	f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "100")

	result, err := f.adjuster(config.AdjusterFriendly).Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "-20.00", result.PromoTotal.StringFixed(2))
	assert.Equal(t, 1, result.Connected)

	cfg := config.DefaultEngineConfig()
	cfg.DiscountChooser = config.ChooserAll
	f.engine = config.NewStaticEngineConfigHolder(cfg)
	result, err = f.adjuster(config.AdjusterFriendly).Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "-30.00", result.PromoTotal.StringFixed(2))
	assert.ElementsMatch(t, []string{"-10.00", "-20.00"}, amounts(f.reload(t, o.ID)))
}

func TestAdjustEnforcesUsageLimitAcrossOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	limit := 1
	promo := f.promotion(t, "percent", `{"percent": 20}`, func(p *promodomain.Promotion) {
		p.UsageLimit = &limit
	})
	adj := f.adjuster(config.AdjusterFriendly)

	orderA := f.order(t, "10")
	_, err := adj.Adjust(ctx, orderA.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(`UPDATE orders SET state = ? WHERE id = ?`, orderdomain.StateComplete, orderA.ID).Error)

	orderB := f.order(t, "10")
	result, err := adj.Adjust(ctx, orderB.ID)
	require.NoError(t, err)
	elig := result.Eligibility[promo.ID.String()]
	assert.False(t, elig.Eligible)
	assert.Equal(t, []string{engine.CodeUsageLimitExceeded}, elig.Errors.Codes())
	assert.Empty(t, f.reload(t, orderB.ID).Adjustments)

	// the completed order does not count against itself
	result, err = adj.Adjust(ctx, orderA.ID)
	require.NoError(t, err)
	assert.True(t, result.Eligibility[promo.ID.String()].Eligible)
	assert.Len(t, f.reload(t, orderA.ID).Adjustments, 1)

	require.NoError(t, f.db.Exec(`UPDATE orders SET state = ? WHERE id = ?`, orderdomain.StateCanceled, orderA.ID).Error)
	result, err = adj.Adjust(ctx, orderB.ID)
	require.NoError(t, err)
	assert.True(t, result.Eligibility[promo.ID.String()].Eligible)
	assert.Len(t, f.reload(t, orderB.ID).Adjustments, 1)
}

func TestAdjustSkipsFinalizedOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "10")
	require.NoError(t, f.db.Exec(`UPDATE orders SET state = ? WHERE id = ?`, orderdomain.StateCanceled, o.ID).Error)

	result, err := f.adjuster(config.AdjusterFriendly).Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, f.reload(t, o.ID).Adjustments)
	assert.Empty(t, f.publisher.events)
}

func TestAdjustUnknownOrder(t *testing.T) {
	f := setup(t)
	_, err := f.adjuster(config.AdjusterFriendly).Adjust(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestAdjustCarriesPromotionCodeOnAdjustments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	promo := f.promotion(t, "percent", `{"percent": 20}`, func(p *promodomain.Promotion) {
		p.ApplyAutomatically = false
	})
	code := &promodomain.PromotionCode{ID: f.node.Generate(), PromotionID: promo.ID, Value: "spring"}
	require.NoError(t, f.promotions.InsertCodes(ctx, f.db, []*promodomain.PromotionCode{code}))
	o := f.order(t, "10")
	require.NoError(t, f.promotions.InsertOrderPromotion(ctx, f.db, &promodomain.OrderPromotion{
		ID:              f.node.Generate(),
		OrderID:         o.ID,
		PromotionID:     promo.ID,
		PromotionCodeID: &code.ID,
	}))

	result, err := f.adjuster(config.AdjusterFriendly).Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Connected)

	loaded := f.reload(t, o.ID)
	require.Len(t, loaded.Adjustments, 1)
	require.NotNil(t, loaded.Adjustments[0].PromotionCodeID)
	assert.Equal(t, code.ID, *loaded.Adjustments[0].PromotionCodeID)
}

func TestAdjustDropsExpiredAutomaticConnection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	expires := f.clock.Now().Add(24 * time.Hour)
	f.promotion(t, "percent", `{"percent": 20}`, func(p *promodomain.Promotion) {
		p.ExpiresAt = &expires
	})
	o := f.order(t, "10")
	adj := f.adjuster(config.AdjusterFriendly)

	_, err := adj.Adjust(ctx, o.ID)
	require.NoError(t, err)
	links, err := f.promotions.OrderPromotions(ctx, f.db, o.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)

	f.clock.Advance(72 * time.Hour)
	result, err := adj.Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Disconnected)

	links, err = f.promotions.OrderPromotions(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Empty(t, f.reload(t, o.ID).Adjustments)
}

func TestLegacyAdjusterOnlyRecalculatesTotals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "10")
	require.NoError(t, f.db.Create(&orderdomain.Adjustment{
		ID:             f.node.Generate(),
		OrderID:        o.ID,
		AdjustableType: orderdomain.KindLineItem,
		AdjustableID:   o.LineItems[0].ID,
		SourceType:     orderdomain.SourceTypePromotionAction,
		SourceID:       f.node.Generate(),
		Label:          "Promotion (Host)",
		Amount:         decimal.RequireFromString("-3"),
		Eligible:       true,
	}).Error)

	result, err := f.adjuster(config.AdjusterLegacy).Adjust(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, config.AdjusterLegacy, result.Adjuster)
	assert.Zero(t, result.Created)

	loaded := f.reload(t, o.ID)
	assert.Equal(t, []string{"-3.00"}, amounts(loaded))
	assert.Equal(t, "7.00", loaded.Total.StringFixed(2))
}

func TestChooseBestKeepsFirstOnTie(t *testing.T) {
	candidates := []action.Discount{
		{Label: "first", Amount: decimal.RequireFromString("-5")},
		{Label: "second", Amount: decimal.RequireFromString("-5")},
		{Label: "small", Amount: decimal.RequireFromString("-3")},
	}
	best := chooserFor(config.ChooserBest)(candidates)
	require.Len(t, best, 1)
	assert.Equal(t, "first", best[0].Label)
	assert.Len(t, chooserFor(config.ChooserAll)(candidates), 3)
	assert.Nil(t, chooseBest(nil))
}

func TestAdjustCheckedRollsBackWhenCheckFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.promotion(t, "percent", `{"percent": 20}`, nil)
	o := f.order(t, "10", "40")
	adj := f.adjuster(config.AdjusterFriendly)

	errStop := errors.New("stop")
	var seen *Result
	_, err := adj.AdjustChecked(ctx, o.ID, func(_ context.Context, _ *gorm.DB, result *Result) error {
		seen = result
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	require.NotNil(t, seen)
	assert.Equal(t, "-10.00", seen.PromoTotal.StringFixed(2))

	loaded := f.reload(t, o.ID)
	assert.Empty(t, loaded.Adjustments)
	assert.Equal(t, "0.00", loaded.PromoTotal.StringFixed(2))
	links, err := f.promotions.OrderPromotions(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Empty(t, f.publisher.events)

	result, err := adj.AdjustChecked(ctx, o.ID, func(context.Context, *gorm.DB, *Result) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "-10.00", result.PromoTotal.StringFixed(2))
	assert.Equal(t, "-10.00", f.reload(t, o.ID).PromoTotal.StringFixed(2))
}
