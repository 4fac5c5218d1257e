package adjuster

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"gorm.io/gorm"
)

type adjustmentKey struct {
	kind     orderdomain.Kind
	itemID   snowflake.ID
	sourceID snowflake.ID
}

// persistAdjustments replaces the order's promotion adjustments with the
// discounts of this pass. Unchanged rows are not written.
func (f *friendly) persistAdjustments(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, result *Result) error {
	existing := map[adjustmentKey][]*orderdomain.Adjustment{}
	for _, adj := range order.Adjustments {
		key := adjustmentKey{adj.AdjustableType, adj.AdjustableID, adj.SourceID}
		existing[key] = append(existing[key], adj)
	}

	now := f.clock.Now()
	kept := make([]*orderdomain.Adjustment, 0, len(order.Adjustments))
	for _, item := range order.Discountables() {
		for _, d := range item.Discounts() {
			key := adjustmentKey{item.Kind(), item.ItemID(), d.SourceID}
			if matches := existing[key]; len(matches) > 0 {
				adj := matches[0]
				existing[key] = matches[1:]
				if adjustmentChanged(adj, d) {
					adj.Label = d.Label
					adj.Amount = d.Amount
					adj.Eligible = true
					adj.PromotionCodeID = d.PromotionCodeID
					adj.UpdatedAt = now
					if err := f.orders.UpdateAdjustment(ctx, tx, adj); err != nil {
						return err
					}
					result.Updated++
				}
				kept = append(kept, adj)
				continue
			}

			adj := &orderdomain.Adjustment{
				ID:              f.genID.Generate(),
				OrderID:         order.ID,
				AdjustableType:  item.Kind(),
				AdjustableID:    item.ItemID(),
				SourceType:      orderdomain.SourceTypePromotionAction,
				SourceID:        d.SourceID,
				PromotionCodeID: d.PromotionCodeID,
				Label:           d.Label,
				Amount:          d.Amount,
				Eligible:        true,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := f.orders.InsertAdjustment(ctx, tx, adj); err != nil {
				return err
			}
			result.Created++
			kept = append(kept, adj)
		}
	}

	var stale []snowflake.ID
	for _, matches := range existing {
		for _, adj := range matches {
			stale = append(stale, adj.ID)
		}
	}
	if err := f.orders.DeleteAdjustments(ctx, tx, stale); err != nil {
		return err
	}
	result.Removed = len(stale)
	order.Adjustments = kept
	return nil
}

func adjustmentChanged(adj *orderdomain.Adjustment, d orderdomain.ItemDiscount) bool {
	if !adj.Eligible || adj.Label != d.Label || !adj.Amount.Equal(d.Amount) {
		return true
	}
	if (adj.PromotionCodeID == nil) != (d.PromotionCodeID == nil) {
		return true
	}
	return adj.PromotionCodeID != nil && *adj.PromotionCodeID != *d.PromotionCodeID
}

// syncConnections links automatic promotions that discounted the order and
// unlinks code-less automatic ones that no longer do.
func (f *friendly) syncConnections(
	ctx context.Context,
	tx *gorm.DB,
	order *orderdomain.Order,
	candidates []candidate,
	links []promodomain.OrderPromotion,
	discounted map[snowflake.ID]bool,
	result *Result,
) error {
	automatic := map[snowflake.ID]bool{}
	for _, c := range candidates {
		if c.promo.Record.ApplyAutomatically {
			automatic[c.promo.Record.ID] = true
		}
	}
	linked := map[snowflake.ID]bool{}
	var drop []snowflake.ID
	for _, link := range links {
		if link.PromotionCodeID == nil && automatic[link.PromotionID] && !discounted[link.PromotionID] {
			drop = append(drop, link.ID)
			continue
		}
		linked[link.PromotionID] = true
	}
	if err := f.promotions.DeleteOrderPromotions(ctx, tx, drop); err != nil {
		return err
	}
	result.Disconnected = len(drop)

	now := f.clock.Now()
	for _, c := range candidates {
		id := c.promo.Record.ID
		if !automatic[id] || !discounted[id] || linked[id] {
			continue
		}
		if err := f.promotions.InsertOrderPromotion(ctx, tx, &promodomain.OrderPromotion{
			ID:          f.genID.Generate(),
			OrderID:     order.ID,
			PromotionID: id,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		linked[id] = true
		result.Connected++
	}
	return nil
}
