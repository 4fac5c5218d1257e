package engine

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/action"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/calculator"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/rule"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type usageMock struct {
	mock.Mock
}

func (m *usageMock) UsageCount(ctx context.Context, promotionID snowflake.ID, excluded []snowflake.ID) (int64, error) {
	args := m.Called(ctx, promotionID, excluded)
	return args.Get(0).(int64), args.Error(1)
}

func (m *usageMock) CodeUsageCount(ctx context.Context, codeID snowflake.ID, excluded []snowflake.ID) (int64, error) {
	args := m.Called(ctx, codeID, excluded)
	return args.Get(0).(int64), args.Error(1)
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func lineItemAction(id snowflake.ID) *domain.PromotionAction {
	return &domain.PromotionAction{
		ID:                    id,
		Type:                  action.TypeAdjustLineItem,
		CalculatorType:        calculator.TypePercent,
		CalculatorPreferences: datatypes.JSON(`{"percent": 20}`),
	}
}

func itemTotalRule(amount string) *domain.PromotionRule {
	return &domain.PromotionRule{Type: rule.TypeItemTotal, Preferences: datatypes.JSON(`{"amount": ` + amount + `}`)}
}

func newOrder() *orderdomain.Order {
	o := &orderdomain.Order{
		ID:        100,
		LineItems: []*orderdomain.LineItem{{ID: 1, Quantity: 2, Price: decimal.RequireFromString("25")}},
		Shipments: []*orderdomain.Shipment{{ID: 2, Cost: decimal.RequireFromString("5")}},
	}
	o.LinkChildren()
	return o
}

func build(t *testing.T, record *domain.Promotion) *Promotion {
	t.Helper()
	if record.Lane == "" {
		record.Lane = domain.LaneDefault
	}
	if record.MatchPolicy == "" {
		record.MatchPolicy = domain.MatchAll
	}
	p, err := Build(record)
	require.NoError(t, err)
	return p
}

func TestPromotionWithoutActionsIsNeverActive(t *testing.T) {
	promo := build(t, &domain.Promotion{ID: 1})
	assert.False(t, promo.Active(now))

	got, err := NewEvaluator(nil, nil).Eligible(context.Background(), promo, newOrder(), now)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, []string{CodeNotActive}, got.Errors.Codes())
}

func TestActivationWindow(t *testing.T) {
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	upcoming := build(t, &domain.Promotion{ID: 1, StartsAt: &later, Actions: []*domain.PromotionAction{lineItemAction(1)}})
	expired := build(t, &domain.Promotion{ID: 2, ExpiresAt: &earlier, Actions: []*domain.PromotionAction{lineItemAction(2)}})
	running := build(t, &domain.Promotion{ID: 3, StartsAt: &earlier, ExpiresAt: &later, Actions: []*domain.PromotionAction{lineItemAction(3)}})

	assert.False(t, upcoming.Active(now))
	assert.False(t, expired.Active(now))
	assert.True(t, running.Active(now))
}

func TestMatchPolicy(t *testing.T) {
	ctx := context.Background()
	order := newOrder()
	rules := func() []*domain.PromotionRule {
		return []*domain.PromotionRule{itemTotalRule("10"), itemTotalRule("100")}
	}

	all := build(t, &domain.Promotion{ID: 1, MatchPolicy: domain.MatchAll, Rules: rules(), Actions: []*domain.PromotionAction{lineItemAction(1)}})
	got, err := NewEvaluator(nil, nil).Eligible(ctx, all, order, now)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, []string{"item_total_less_than_or_equal"}, got.Errors.Codes())

	anyPolicy := build(t, &domain.Promotion{ID: 2, MatchPolicy: domain.MatchAny, Rules: rules(), Actions: []*domain.PromotionAction{lineItemAction(2)}})
	got, err = NewEvaluator(nil, nil).Eligible(ctx, anyPolicy, order, now)
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Empty(t, got.Errors)
}

func TestOrderRulesAreSkippedForItems(t *testing.T) {
	promo := build(t, &domain.Promotion{ID: 1, Rules: []*domain.PromotionRule{itemTotalRule("1000")}, Actions: []*domain.PromotionAction{lineItemAction(1)}})
	order := newOrder()

	got, err := NewEvaluator(nil, nil).Eligible(context.Background(), promo, order.LineItems[0], now)
	require.NoError(t, err)
	assert.True(t, got.Eligible)
}

func TestItemNeedsAnActionThatCanDiscountIt(t *testing.T) {
	promo := build(t, &domain.Promotion{ID: 1, Actions: []*domain.PromotionAction{lineItemAction(1)}})
	order := newOrder()

	got, err := NewEvaluator(nil, nil).Eligible(context.Background(), promo, order.Shipments[0], now)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, []string{CodeNoApplicableAction}, got.Errors.Codes())
}

func TestUsageLimitExcludesOwnOrder(t *testing.T) {
	ctx := context.Background()
	limit := 1
	promo := build(t, &domain.Promotion{ID: 7, UsageLimit: &limit, Actions: []*domain.PromotionAction{lineItemAction(1)}})
	order := newOrder()

	usage := &usageMock{}
	usage.On("UsageCount", ctx, snowflake.ID(7), []snowflake.ID{order.ID}).Return(int64(0), nil).Once()
	usage.On("UsageCount", ctx, snowflake.ID(7), []snowflake.ID{order.ID}).Return(int64(1), nil).Once()
	evaluator := NewEvaluator(nil, usage)

	got, err := evaluator.Eligible(ctx, promo, order, now)
	require.NoError(t, err)
	assert.True(t, got.Eligible)

	got, err = evaluator.Eligible(ctx, promo, order, now)
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, []string{CodeUsageLimitExceeded}, got.Errors.Codes())
	usage.AssertExpectations(t)
}

func TestCodeUsageLimit(t *testing.T) {
	ctx := context.Background()
	limit := 2
	promo := &domain.Promotion{ID: 7, PerCodeUsageLimit: &limit}

	usage := &usageMock{}
	usage.On("CodeUsageCount", ctx, snowflake.ID(9), []snowflake.ID(nil)).Return(int64(2), nil)

	exceeded, err := NewEvaluator(nil, usage).CodeUsageLimitExceeded(ctx, promo, 9, nil)
	require.NoError(t, err)
	assert.True(t, exceeded)

	promo.PerCodeUsageLimit = nil
	exceeded, err = NewEvaluator(nil, usage).CodeUsageLimitExceeded(ctx, promo, 9, nil)
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestBuildAllSortsByLaneThenID(t *testing.T) {
	promos, err := BuildAll([]*domain.Promotion{
		{ID: 3, Lane: domain.LanePost, MatchPolicy: domain.MatchAll},
		{ID: 2, Lane: domain.LaneDefault, MatchPolicy: domain.MatchAll},
		{ID: 1, Lane: domain.LaneDefault, MatchPolicy: domain.MatchAll},
		{ID: 4, Lane: domain.LanePre, MatchPolicy: domain.MatchAll},
	})
	require.NoError(t, err)

	var ids []snowflake.ID
	for _, p := range promos {
		ids = append(ids, p.Record.ID)
	}
	assert.Equal(t, []snowflake.ID{4, 1, 2, 3}, ids)
}

func TestActionsByLevelPutsLineItemsFirst(t *testing.T) {
	promo := build(t, &domain.Promotion{ID: 1, Actions: []*domain.PromotionAction{
		{ID: 1, Type: action.TypeAdjustShipment, CalculatorType: calculator.TypeFreeShipping},
		lineItemAction(2),
	}})

	ordered := promo.ActionsByLevel()
	require.Len(t, ordered, 2)
	assert.Equal(t, action.LevelLineItem, ordered[0].Level())
	assert.Equal(t, action.LevelShipment, ordered[1].Level())
}

func TestBuildRejectsBrokenRecords(t *testing.T) {
	_, err := Build(&domain.Promotion{ID: 1, Rules: []*domain.PromotionRule{{Type: "nope"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidRuleType)
}
