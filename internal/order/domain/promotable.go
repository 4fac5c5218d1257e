package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Kind names the level a promotable sits at.
type Kind string

const (
	KindOrder    Kind = "order"
	KindLineItem Kind = "line_item"
	KindShipment Kind = "shipment"
)

// Promotable is anything a rule or action can be evaluated against.
type Promotable interface {
	Kind() Kind
	OwningOrder() *Order
}

// Discountable can carry discounts: line items and shipments.
type Discountable interface {
	Promotable
	ItemID() snowflake.ID
	Amount() decimal.Decimal
	DiscountableAmount() decimal.Decimal
	Discounts() []ItemDiscount
	AddDiscount(d ItemDiscount)
	ResetDiscounts()
}

func (o *Order) Kind() Kind { return KindOrder }
func (o *Order) OwningOrder() *Order { return o }

// Discountables returns line items followed by shipments.
func (o *Order) Discountables() []Discountable {
	out := make([]Discountable, 0, len(o.LineItems)+len(o.Shipments))
	for _, li := range o.LineItems {
		out = append(out, li)
	}
	for _, s := range o.Shipments {
		out = append(out, s)
	}
	return out
}

func (li *LineItem) Kind() Kind { return KindLineItem }
func (li *LineItem) OwningOrder() *Order { return li.Order }
func (li *LineItem) ItemID() snowflake.ID { return li.ID }
func (li *LineItem) Amount() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}
func (li *LineItem) DiscountableAmount() decimal.Decimal {
	return discountable(li.Amount(), li.CurrentDiscounts)
}
func (li *LineItem) Discounts() []ItemDiscount { return li.CurrentDiscounts }
func (li *LineItem) AddDiscount(d ItemDiscount) { li.CurrentDiscounts = append(li.CurrentDiscounts, d) }
func (li *LineItem) ResetDiscounts() { li.CurrentDiscounts = nil }

func (s *Shipment) Kind() Kind { return KindShipment }
func (s *Shipment) OwningOrder() *Order { return s.Order }
func (s *Shipment) ItemID() snowflake.ID { return s.ID }
func (s *Shipment) Amount() decimal.Decimal { return s.Cost }
func (s *Shipment) DiscountableAmount() decimal.Decimal {
	return discountable(s.Cost, s.CurrentDiscounts)
}
func (s *Shipment) Discounts() []ItemDiscount { return s.CurrentDiscounts }
func (s *Shipment) AddDiscount(d ItemDiscount) { s.CurrentDiscounts = append(s.CurrentDiscounts, d) }
func (s *Shipment) ResetDiscounts() { s.CurrentDiscounts = nil }

// discounts are negative, so adding them reduces the amount; never below zero.
func discountable(amount decimal.Decimal, discounts []ItemDiscount) decimal.Decimal {
	for _, d := range discounts {
		amount = amount.Add(d.Amount)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
