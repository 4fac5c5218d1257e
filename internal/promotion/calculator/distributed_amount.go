package calculator

import (
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/shopspring/decimal"
)

// DistributedAmount spreads Amount across the order's line items in proportion
// to each item's undiscounted amount. The last line item takes the rounding remainder.
type DistributedAmount struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *DistributedAmount) Type() string { return TypeDistributedAmount }

func (c *DistributedAmount) validate() error {
	if c.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (c *DistributedAmount) Compute(item orderdomain.Discountable) *decimal.Decimal {
	li, ok := item.(*orderdomain.LineItem)
	if !ok || li.Order == nil || len(li.Order.LineItems) == 0 {
		return nil
	}
	total := orderItemTotal(li)
	if !total.IsPositive() {
		return nil
	}
	amount := c.Amount
	if amount.GreaterThan(total) {
		amount = total
	}

	items := li.Order.LineItems
	allocated := decimal.Zero
	for i, other := range items {
		share := round(amount.Mul(other.Amount()).Div(total))
		if i == len(items)-1 {
			share = amount.Sub(allocated)
		}
		if other.ID == li.ID {
			return clamp(share, li.DiscountableAmount())
		}
		allocated = allocated.Add(share)
	}
	return nil
}
