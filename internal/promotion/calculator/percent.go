package calculator

import (
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/shopspring/decimal"
)

// Percent discounts a share of the item's discountable amount.
type Percent struct {
	Percent decimal.Decimal `json:"percent"`
}

func (c *Percent) Type() string { return TypePercent }

func (c *Percent) validate() error {
	if c.Percent.IsNegative() || c.Percent.GreaterThan(hundred) {
		return ErrInvalidPercent
	}
	return nil
}

func (c *Percent) Compute(item orderdomain.Discountable) *decimal.Decimal {
	base := item.DiscountableAmount()
	return clamp(round(base.Mul(c.Percent).Div(hundred)), base)
}

// FlatRate discounts a fixed amount, never more than the item is worth.
type FlatRate struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *FlatRate) Type() string { return TypeFlatRate }

func (c *FlatRate) validate() error {
	if c.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (c *FlatRate) Compute(item orderdomain.Discountable) *decimal.Decimal {
	return clamp(c.Amount, item.DiscountableAmount())
}

// FreeShipping removes the full remaining cost of a shipment.
type FreeShipping struct{}

func (c *FreeShipping) Type() string { return TypeFreeShipping }

func (c *FreeShipping) validate() error { return nil }

func (c *FreeShipping) Compute(item orderdomain.Discountable) *decimal.Decimal {
	if item.Kind() != orderdomain.KindShipment {
		return nil
	}
	base := item.DiscountableAmount()
	return clamp(base, base)
}
