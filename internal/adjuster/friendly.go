package adjuster

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jarednorman/solidus-friendly-promotions/internal/clock"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/action"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/engine"
	"gorm.io/gorm"
)

type friendly struct {
	genID      *snowflake.Node
	engine     *config.EngineConfigHolder
	clock      clock.Clock
	orders     orderdomain.Repository
	promotions promodomain.Repository
}

// candidate is a promotion considered for the order, with the code it was
// connected through, if any.
type candidate struct {
	promo  *engine.Promotion
	codeID *snowflake.ID
}

func (f *friendly) run(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*Result, error) {
	order, err := load(ctx, tx, f.orders, orderID)
	if err != nil {
		return nil, err
	}
	result := newResult(order, config.AdjusterFriendly)
	if order.Finalized() {
		result.Skipped = true
		return result, nil
	}
	order.ResetDiscounts()

	now := f.clock.Now()
	candidates, links, err := f.candidates(ctx, tx, orderID, now)
	if err != nil {
		return nil, err
	}

	evaluator := engine.NewEvaluatorFor(tx, f.orders, f.promotions)
	eligible := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		elig, err := evaluator.Eligible(ctx, c.promo, order, now)
		if err != nil {
			return nil, err
		}
		if elig.Eligible && c.codeID != nil {
			exceeded, err := evaluator.CodeUsageLimitExceeded(ctx, c.promo.Record, *c.codeID, []snowflake.ID{order.ID})
			if err != nil {
				return nil, err
			}
			if exceeded {
				elig = promodomain.Eligibility{Errors: promodomain.EligibilityErrors{{
					Code:    engine.CodeUsageLimitExceeded,
					Message: "promotion code usage limit reached",
				}}}
			}
		}
		result.Eligibility[c.promo.Record.ID.String()] = elig
		if elig.Eligible {
			eligible = append(eligible, c)
		}
	}

	discounted, err := f.discount(ctx, evaluator, order, eligible, now, result)
	if err != nil {
		return nil, err
	}
	if err := f.persistAdjustments(ctx, tx, order, result); err != nil {
		return nil, err
	}
	if err := f.syncConnections(ctx, tx, order, candidates, links, discounted, result); err != nil {
		return nil, err
	}

	order.RecalculateTotals()
	if err := f.orders.SaveTotals(ctx, tx, order); err != nil {
		return nil, err
	}
	result.PromoTotal = order.PromoTotal
	result.Total = order.Total
	return result, nil
}

// candidates returns connected promotions plus active automatic ones, sorted by lane then id.
func (f *friendly) candidates(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, now time.Time) ([]candidate, []promodomain.OrderPromotion, error) {
	links, err := f.promotions.OrderPromotions(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	automatic, err := f.promotions.ActiveAutomaticIDs(ctx, tx, now)
	if err != nil {
		return nil, nil, err
	}

	linkByPromo := make(map[snowflake.ID]*promodomain.OrderPromotion, len(links))
	seen := map[snowflake.ID]bool{}
	ids := make([]snowflake.ID, 0, len(links)+len(automatic))
	for i := range links {
		link := &links[i]
		if existing, ok := linkByPromo[link.PromotionID]; !ok || (existing.PromotionCodeID == nil && link.PromotionCodeID != nil) {
			linkByPromo[link.PromotionID] = link
		}
		if !seen[link.PromotionID] {
			seen[link.PromotionID] = true
			ids = append(ids, link.PromotionID)
		}
	}
	for _, id := range automatic {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, links, nil
	}

	records, err := f.promotions.LoadMany(ctx, tx, ids)
	if err != nil {
		return nil, nil, err
	}
	promos, err := engine.BuildAll(records)
	if err != nil {
		return nil, nil, err
	}

	out := make([]candidate, 0, len(promos))
	for _, p := range promos {
		c := candidate{promo: p}
		if link, ok := linkByPromo[p.Record.ID]; ok {
			c.codeID = link.PromotionCodeID
		}
		out = append(out, c)
	}
	return out, links, nil
}

// discount walks the lanes in order and appends the chosen discounts to each
// item, so later lanes see the reduced amount. It returns the promotions that
// discounted at least one item.
func (f *friendly) discount(ctx context.Context, evaluator *engine.Evaluator, order *orderdomain.Order, eligible []candidate, now time.Time, result *Result) (map[snowflake.ID]bool, error) {
	choose := chooserFor(f.engine.Get().DiscountChooser)
	codes := make(map[snowflake.ID]*snowflake.ID, len(eligible))
	for _, c := range eligible {
		codes[c.promo.Record.ID] = c.codeID
	}
	discounted := map[snowflake.ID]bool{}

	for _, lane := range promodomain.LaneOrder() {
		var inLane []*engine.Promotion
		for _, c := range eligible {
			if c.promo.Record.LaneIndex() == promodomain.OrderedLanes()[lane] {
				inLane = append(inLane, c.promo)
			}
		}
		if len(inLane) == 0 {
			continue
		}

		for _, item := range order.Discountables() {
			var found []action.Discount
			for _, promo := range inLane {
				elig, err := evaluator.Eligible(ctx, promo, item, now)
				if err != nil {
					return nil, err
				}
				if !elig.Eligible {
					continue
				}
				for _, act := range promo.ActionsByLevel() {
					if !act.CanDiscount(item) {
						continue
					}
					if d := act.Discount(item); d != nil {
						found = append(found, *d)
					}
				}
			}

			for _, d := range choose(found) {
				// stacked discounts never take the item below zero
				remaining := item.DiscountableAmount()
				if d.Amount.Neg().GreaterThan(remaining) {
					d.Amount = remaining.Neg()
				}
				if !d.Amount.IsNegative() {
					continue
				}
				promoID := d.Source.Promotion().ID
				item.AddDiscount(d.ItemDiscount(codes[promoID]))
				discounted[promoID] = true
				result.Discounts = append(result.Discounts, AppliedDiscount{
					PromotionID: promoID,
					ActionID:    d.Source.ID(),
					Lane:        lane,
					Level:       d.Source.Level().String(),
					ItemKind:    item.Kind(),
					ItemID:      item.ItemID(),
					Label:       d.Label,
					Amount:      d.Amount,
				})
			}
		}
	}
	return discounted, nil
}
