package action

import (
	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/calculator"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

// Base carries what every action shares. Variants embed it and must
// override CanDiscount and Level.
type Base struct {
	record     *domain.PromotionAction
	promotion  *domain.Promotion
	calculator calculator.Calculator
}

func NewBase(record *domain.PromotionAction, promo *domain.Promotion, calc calculator.Calculator) Base {
	return Base{record: record, promotion: promo, calculator: calc}
}

func (b *Base) ID() snowflake.ID {
	if b.record == nil {
		return 0
	}
	return b.record.ID
}

func (b *Base) Record() *domain.PromotionAction { return b.record }

func (b *Base) Promotion() *domain.Promotion { return b.promotion }

func (b *Base) Calculator() calculator.Calculator { return b.calculator }

func (b *Base) CanDiscount(orderdomain.Discountable) bool {
	panic(ErrNotImplemented)
}

func (b *Base) Level() Level {
	panic(ErrNotImplemented)
}

func (b *Base) Label() string {
	if b.promotion == nil || b.promotion.CustomerLabel == "" {
		return "Promotion"
	}
	return "Promotion (" + b.promotion.CustomerLabel + ")"
}

// ComputeDiscount asks the calculator for an amount, clamps it to what is left
// on the item and returns it negated. Nil and zero amounts yield no discount.
func (b *Base) ComputeDiscount(source Action, item orderdomain.Discountable) *Discount {
	if b.calculator == nil {
		return nil
	}
	amount := b.calculator.Compute(item)
	if amount == nil {
		return nil
	}
	value := *amount
	if limit := item.DiscountableAmount(); value.GreaterThan(limit) {
		value = limit
	}
	if !value.IsPositive() {
		return nil
	}
	return &Discount{
		Item:   item,
		Label:  b.Label(),
		Source: source,
		Amount: value.Neg(),
	}
}

type AdjustLineItem struct {
	Base
}

func (a *AdjustLineItem) Type() string { return TypeAdjustLineItem }

func (a *AdjustLineItem) Level() Level { return LevelLineItem }

func (a *AdjustLineItem) CanDiscount(item orderdomain.Discountable) bool {
	return item.Kind() == orderdomain.KindLineItem
}

func (a *AdjustLineItem) Discount(item orderdomain.Discountable) *Discount {
	return a.ComputeDiscount(a, item)
}

type AdjustShipment struct {
	Base
}

func (a *AdjustShipment) Type() string { return TypeAdjustShipment }

func (a *AdjustShipment) Level() Level { return LevelShipment }

func (a *AdjustShipment) CanDiscount(item orderdomain.Discountable) bool {
	return item.Kind() == orderdomain.KindShipment
}

func (a *AdjustShipment) Discount(item orderdomain.Discountable) *Discount {
	return a.ComputeDiscount(a, item)
}
