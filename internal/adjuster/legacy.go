package adjuster

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/jarednorman/solidus-friendly-promotions/internal/config"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"gorm.io/gorm"
)

// legacy leaves adjustments to the host's own promotion engine and only
// refreshes the totals they produce.
type legacy struct {
	orders orderdomain.Repository
}

func (l *legacy) run(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*Result, error) {
	order, err := load(ctx, tx, l.orders, orderID)
	if err != nil {
		return nil, err
	}
	result := newResult(order, config.AdjusterLegacy)
	if order.Finalized() {
		result.Skipped = true
		return result, nil
	}

	order.RecalculateTotals()
	if err := l.orders.SaveTotals(ctx, tx, order); err != nil {
		return nil, err
	}
	result.PromoTotal = order.PromoTotal
	result.Total = order.Total
	return result, nil
}
