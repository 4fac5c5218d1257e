package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Finalized orders are never recalculated.
func (o *Order) Finalized() bool {
	return o.State == StateCanceled || o.State == StateReturned
}

// CheckoutStarted reports whether the order has left the cart, including completed orders.
func (o *Order) CheckoutStarted() bool {
	return o.State != StateCart && !o.Finalized()
}

func (o *Order) Completed() bool {
	return o.State == StateComplete
}

// RestartCheckout pushes the order back to the cart so totals are re-presented.
func (o *Order) RestartCheckout() {
	o.State = StateCart
	o.CompletedAt = nil
}

// LinkChildren points every line item and shipment back at the order.
func (o *Order) LinkChildren() {
	for _, li := range o.LineItems {
		li.Order = o
	}
	for _, s := range o.Shipments {
		s.Order = o
	}
}

func (o *Order) ResetDiscounts() {
	for _, d := range o.Discountables() {
		d.ResetDiscounts()
	}
}

// RecalculateTotals derives item, shipment, promo and grand totals from the
// line items, shipments and eligible adjustments currently loaded on the order.
func (o *Order) RecalculateTotals() {
	byItem := map[Kind]map[snowflake.ID]decimal.Decimal{
		KindLineItem: {},
		KindShipment: {},
	}
	promoTotal := decimal.Zero
	for _, adj := range o.Adjustments {
		if !adj.Eligible {
			continue
		}
		bucket, ok := byItem[adj.AdjustableType]
		if !ok {
			continue
		}
		bucket[adj.AdjustableID] = bucket[adj.AdjustableID].Add(adj.Amount)
		promoTotal = promoTotal.Add(adj.Amount)
	}

	itemTotal := decimal.Zero
	for _, li := range o.LineItems {
		itemTotal = itemTotal.Add(li.Amount())
		li.PromoTotal = byItem[KindLineItem][li.ID]
		li.AdjustmentTotal = li.PromoTotal
	}
	shipmentTotal := decimal.Zero
	for _, s := range o.Shipments {
		shipmentTotal = shipmentTotal.Add(s.Cost)
		s.PromoTotal = byItem[KindShipment][s.ID]
		s.AdjustmentTotal = s.PromoTotal
	}

	o.ItemTotal = itemTotal
	o.ShipmentTotal = shipmentTotal
	o.PromoTotal = promoTotal
	o.AdjustmentTotal = promoTotal
	o.Total = itemTotal.Add(shipmentTotal).Add(promoTotal)
}

// FindDiscountable looks up a line item or shipment on the loaded order.
func (o *Order) FindDiscountable(kind Kind, id snowflake.ID) Discountable {
	switch kind {
	case KindLineItem:
		for _, li := range o.LineItems {
			if li.ID == id {
				return li
			}
		}
	case KindShipment:
		for _, s := range o.Shipments {
			if s.ID == id {
				return s
			}
		}
	}
	return nil
}
