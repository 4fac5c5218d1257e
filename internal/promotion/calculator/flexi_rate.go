package calculator

import (
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/shopspring/decimal"
)

// FlexiRate charges FirstItem off the first unit and AdditionalItem off each
// further unit, up to MaxItems units (0 means unlimited).
type FlexiRate struct {
	FirstItem      decimal.Decimal `json:"first_item"`
	AdditionalItem decimal.Decimal `json:"additional_item"`
	MaxItems       int             `json:"max_items"`
}

func (c *FlexiRate) Type() string { return TypeFlexiRate }

func (c *FlexiRate) validate() error {
	if c.FirstItem.IsNegative() || c.AdditionalItem.IsNegative() {
		return ErrInvalidAmount
	}
	if c.MaxItems < 0 {
		return ErrInvalidMaxItems
	}
	return nil
}

func (c *FlexiRate) Compute(item orderdomain.Discountable) *decimal.Decimal {
	units := 1
	if li, ok := item.(*orderdomain.LineItem); ok {
		units = li.Quantity
	}
	if c.MaxItems > 0 && units > c.MaxItems {
		units = c.MaxItems
	}
	if units <= 0 {
		return nil
	}
	amount := c.FirstItem.Add(c.AdditionalItem.Mul(decimal.NewFromInt(int64(units - 1))))
	return clamp(amount, item.DiscountableAmount())
}
