package calculator

import (
	"sort"

	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/shopspring/decimal"
)

// tier thresholds are compared with the order's undiscounted line item total.
type tier struct {
	threshold decimal.Decimal
	value     decimal.Decimal
}

func parseTiers(raw map[string]decimal.Decimal) ([]tier, error) {
	tiers := make([]tier, 0, len(raw))
	for key, value := range raw {
		threshold, err := decimal.NewFromString(key)
		if err != nil || !threshold.IsPositive() {
			return nil, ErrInvalidTiers
		}
		if value.IsNegative() {
			return nil, ErrInvalidTiers
		}
		tiers = append(tiers, tier{threshold: threshold, value: value})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].threshold.LessThan(tiers[j].threshold) })
	return tiers, nil
}

// pick returns the value of the highest tier reached, or base.
func pick(tiers []tier, base, total decimal.Decimal) decimal.Decimal {
	value := base
	for _, t := range tiers {
		if total.GreaterThanOrEqual(t.threshold) {
			value = t.value
		}
	}
	return value
}

func orderItemTotal(item orderdomain.Discountable) decimal.Decimal {
	order := item.OwningOrder()
	if order == nil {
		return item.Amount()
	}
	total := decimal.Zero
	for _, li := range order.LineItems {
		total = total.Add(li.Amount())
	}
	return total
}

type TieredPercent struct {
	BasePercent decimal.Decimal            `json:"base_percent"`
	Tiers       map[string]decimal.Decimal `json:"tiers"`

	sorted []tier
}

func (c *TieredPercent) Type() string { return TypeTieredPercent }

func (c *TieredPercent) validate() error {
	if c.BasePercent.IsNegative() || c.BasePercent.GreaterThan(hundred) {
		return ErrInvalidPercent
	}
	tiers, err := parseTiers(c.Tiers)
	if err != nil {
		return err
	}
	for _, t := range tiers {
		if t.value.GreaterThan(hundred) {
			return ErrInvalidPercent
		}
	}
	c.sorted = tiers
	return nil
}

func (c *TieredPercent) Compute(item orderdomain.Discountable) *decimal.Decimal {
	percent := pick(c.sorted, c.BasePercent, orderItemTotal(item))
	base := item.DiscountableAmount()
	return clamp(round(base.Mul(percent).Div(hundred)), base)
}

type TieredFlatRate struct {
	BaseAmount decimal.Decimal            `json:"base_amount"`
	Tiers      map[string]decimal.Decimal `json:"tiers"`

	sorted []tier
}

func (c *TieredFlatRate) Type() string { return TypeTieredFlatRate }

func (c *TieredFlatRate) validate() error {
	if c.BaseAmount.IsNegative() {
		return ErrInvalidAmount
	}
	tiers, err := parseTiers(c.Tiers)
	if err != nil {
		return err
	}
	c.sorted = tiers
	return nil
}

func (c *TieredFlatRate) Compute(item orderdomain.Discountable) *decimal.Decimal {
	return clamp(pick(c.sorted, c.BaseAmount, orderItemTotal(item)), item.DiscountableAmount())
}
