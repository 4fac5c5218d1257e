package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/jarednorman/solidus-friendly-promotions/internal/adjuster"
	auditdomain "github.com/jarednorman/solidus-friendly-promotions/internal/audit/domain"
	auditrepository "github.com/jarednorman/solidus-friendly-promotions/internal/audit/repository"
	auditservice "github.com/jarednorman/solidus-friendly-promotions/internal/audit/service"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	"github.com/jarednorman/solidus-friendly-promotions/internal/migration"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	orderrepository "github.com/jarednorman/solidus-friendly-promotions/internal/order/repository"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	promorepository "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	orders     orderdomain.Repository
	promotions promodomain.Repository
	audit      auditdomain.Service
	svc        *Service
}

func setup(t *testing.T, engineCfg config.EngineConfig) *fixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:         conn,
		node:       node,
		clock:      clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)),
		orders:     orderrepository.Provide(),
		promotions: promorepository.Provide(),
	}
	holder := config.NewStaticEngineConfigHolder(engineCfg)
	f.audit = auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
		Clock: f.clock,
	})
	adj := adjuster.New(adjuster.Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Config:     config.Config{Adjuster: config.AdjusterFriendly},
		Engine:     holder,
		Clock:      f.clock,
		Orders:     f.orders,
		Promotions: f.promotions,
	})
	f.svc = New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      f.clock,
		Engine:     holder,
		Adjuster:   adj,
		Orders:     f.orders,
		Promotions: f.promotions,
		Audit:      f.audit,
	})
	return f
}

func (f *fixture) promotion(t *testing.T, mutate func(p *promodomain.Promotion)) *promodomain.Promotion {
	t.Helper()
	p := &promodomain.Promotion{
		ID:            f.node.Generate(),
		Name:          "Spring",
		CustomerLabel: "Spring",
		Lane:          promodomain.LaneDefault,
		MatchPolicy:   promodomain.MatchAll,
		Actions: []*promodomain.PromotionAction{{
			ID:                    f.node.Generate(),
			Type:                  "adjust_line_item",
			CalculatorType:        "percent",
			CalculatorPreferences: datatypes.JSON(`{"percent": 20}`),
		}},
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, f.promotions.Insert(context.Background(), f.db, p))
	return p
}

func (f *fixture) code(t *testing.T, promo *promodomain.Promotion, value string) *promodomain.PromotionCode {
	t.Helper()
	c := &promodomain.PromotionCode{ID: f.node.Generate(), PromotionID: promo.ID, Value: promodomain.NormalizeCode(value)}
	require.NoError(t, f.promotions.InsertCodes(context.Background(), f.db, []*promodomain.PromotionCode{c}))
	return c
}

func (f *fixture) order(t *testing.T, state orderdomain.State) *orderdomain.Order {
	t.Helper()
	o := &orderdomain.Order{
		ID:     f.node.Generate(),
		Number: "R" + f.node.Generate().String(),
		State:  state,
		LineItems: []*orderdomain.LineItem{{
			ID:        f.node.Generate(),
			ProductID: 1,
			Quantity:  1,
			Price:     decimal.RequireFromString("10"),
		}},
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

func automatic(p *promodomain.Promotion) { p.ApplyAutomatically = true }

func TestEnsurePromotionsEligibleRestartsCheckoutOnDrift(t *testing.T) {
	f := setup(t, config.DefaultEngineConfig())
	ctx := context.Background()
	f.promotion(t, automatic)
	o := f.order(t, orderdomain.StatePayment)

	ok, err := f.svc.EnsurePromotionsEligible(ctx, o.ID)
	assert.False(t, ok)
	var verrs promodomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has(CodePromotionTotalChanged))

	loaded := f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StateCart, loaded.State)
	assert.Equal(t, "-2.00", loaded.PromoTotal.StringFixed(2))

	logs, err := f.audit.List(ctx, auditdomain.ListFilter{Action: auditdomain.ActionCheckoutRestarted})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].TargetID)
	assert.Equal(t, o.ID.String(), *logs[0].TargetID)

	// totals are stable now, so a second check passes
	require.NoError(t, f.db.Exec(`UPDATE orders SET state = ? WHERE id = ?`, orderdomain.StatePayment, o.ID).Error)
	ok, err = f.svc.EnsurePromotionsEligible(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsurePromotionsEligibleIgnoresCartOrders(t *testing.T) {
	f := setup(t, config.DefaultEngineConfig())
	f.promotion(t, automatic)
	o := f.order(t, orderdomain.StateCart)

	ok, err := f.svc.EnsurePromotionsEligible(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "-2.00", f.reload(t, o.ID).PromoTotal.StringFixed(2))
}

func TestEnsurePromotionsEligibleWithoutRestartKeepsChargedTotals(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.RestartCheckoutOnDrift = false
	f := setup(t, cfg)
	ctx := context.Background()
	f.promotion(t, automatic)
	o := f.order(t, orderdomain.StateComplete)

	for i := 0; i < 2; i++ {
		ok, err := f.svc.EnsurePromotionsEligible(ctx, o.ID)
		assert.False(t, ok)
		var verrs promodomain.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.True(t, verrs.Has(CodePromotionTotalChanged))

		loaded := f.reload(t, o.ID)
		assert.Equal(t, orderdomain.StateComplete, loaded.State)
		assert.Equal(t, "0.00", loaded.PromoTotal.StringFixed(2))
		assert.Empty(t, loaded.Adjustments)
	}

	links, err := f.promotions.OrderPromotions(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestEnsurePromotionsEligibleFailedRestartLeavesOrderUntouched(t *testing.T) {
	f := setup(t, config.DefaultEngineConfig())
	ctx := context.Background()
	f.promotion(t, automatic)
	o := f.order(t, orderdomain.StateConfirm)
	require.NoError(t, f.db.Migrator().DropTable(&auditdomain.AuditLog{}))

	ok, err := f.svc.EnsurePromotionsEligible(ctx, o.ID)
	require.Error(t, err)
	assert.False(t, ok)
	var verrs promodomain.ValidationErrors
	assert.False(t, errors.As(err, &verrs))

	loaded := f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StateConfirm, loaded.State)
	assert.Equal(t, "0.00", loaded.PromoTotal.StringFixed(2))
	assert.Empty(t, loaded.Adjustments)
}

func TestApplyAndRemoveCode(t *testing.T) {
	f := setup(t, config.DefaultEngineConfig())
	ctx := context.Background()
	promo := f.promotion(t, nil)
	code := f.code(t, promo, "SPRING")
	o := f.order(t, orderdomain.StateCart)

	result, err := f.svc.ApplyCode(ctx, o.ID, "  Spring ")
	require.NoError(t, err)
	assert.Equal(t, "-2.00", result.PromoTotal.StringFixed(2))

	loaded := f.reload(t, o.ID)
	require.Len(t, loaded.Adjustments, 1)
	require.NotNil(t, loaded.Adjustments[0].PromotionCodeID)
	assert.Equal(t, code.ID, *loaded.Adjustments[0].PromotionCodeID)

	_, err = f.svc.ApplyCode(ctx, o.ID, "spring")
	assert.ErrorIs(t, err, ErrCouponCodeAlreadyPresent)

	result, err = f.svc.RemoveCode(ctx, o.ID, "spring")
	require.NoError(t, err)
	assert.Equal(t, "0.00", result.PromoTotal.StringFixed(2))
	assert.Empty(t, f.reload(t, o.ID).Adjustments)

	_, err = f.svc.RemoveCode(ctx, o.ID, "spring")
	assert.ErrorIs(t, err, ErrCouponCodeNotPresent)

	logs, err := f.audit.List(ctx, auditdomain.ListFilter{TargetType: auditdomain.TargetOrder, TargetID: o.ID.String()})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestApplyCodeErrors(t *testing.T) {
	f := setup(t, config.DefaultEngineConfig())
	ctx := context.Background()
	now := f.clock.Now()
	o := f.order(t, orderdomain.StateCart)

	_, err := f.svc.ApplyCode(ctx, o.ID, "missing")
	assert.ErrorIs(t, err, ErrCouponCodeNotFound)
	_, err = f.svc.ApplyCode(ctx, o.ID, "   ")
	assert.ErrorIs(t, err, ErrCouponCodeNotFound)

	past := now.Add(-48 * time.Hour)
	f.code(t, f.promotion(t, func(p *promodomain.Promotion) { p.ExpiresAt = &past }), "old")
	_, err = f.svc.ApplyCode(ctx, o.ID, "old")
	assert.ErrorIs(t, err, ErrCouponCodeExpired)

	future := now.Add(48 * time.Hour)
	f.code(t, f.promotion(t, func(p *promodomain.Promotion) { p.StartsAt = &future }), "soon")
	_, err = f.svc.ApplyCode(ctx, o.ID, "soon")
	assert.ErrorIs(t, err, ErrCouponCodeNotStarted)

	zero := 0
	f.code(t, f.promotion(t, func(p *promodomain.Promotion) { p.PerCodeUsageLimit = &zero }), "used")
	_, err = f.svc.ApplyCode(ctx, o.ID, "used")
	assert.ErrorIs(t, err, ErrCouponCodeMaxUsage)

	f.code(t, f.promotion(t, func(p *promodomain.Promotion) {
		p.Rules = []*promodomain.PromotionRule{{
			ID:          f.node.Generate(),
			Type:        "item_total",
			Preferences: datatypes.JSON(`{"amount": "100"}`),
		}}
	}), "big")
	_, err = f.svc.ApplyCode(ctx, o.ID, "big")
	assert.ErrorIs(t, err, ErrCouponCodeNotEligible)
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.NotEmpty(t, notEligible.Errors)

	links, err := f.promotions.OrderPromotions(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestApplyCodeUnknownOrder(t *testing.T) {
	f := setup(t, config.DefaultEngineConfig())
	_, err := f.svc.ApplyCode(context.Background(), f.node.Generate(), "spring")
	assert.ErrorIs(t, err, orderdomain.ErrNotFound)
}
