package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestRecalculateTotalsCountsOnlyEligibleAdjustments(t *testing.T) {
	o := &Order{
		LineItems: []*LineItem{
			{ID: 1, Quantity: 2, Price: dec("10")},
			{ID: 2, Quantity: 1, Price: dec("40")},
		},
		Shipments: []*Shipment{{ID: 3, Cost: dec("5")}},
		Adjustments: []*Adjustment{
			{AdjustableType: KindLineItem, AdjustableID: 1, Amount: dec("-4"), Eligible: true},
			{AdjustableType: KindLineItem, AdjustableID: 2, Amount: dec("-8"), Eligible: false},
			{AdjustableType: KindShipment, AdjustableID: 3, Amount: dec("-5"), Eligible: true},
		},
	}

	o.RecalculateTotals()

	assert.Equal(t, "60.00", o.ItemTotal.StringFixed(2))
	assert.Equal(t, "5.00", o.ShipmentTotal.StringFixed(2))
	assert.Equal(t, "-9.00", o.PromoTotal.StringFixed(2))
	assert.Equal(t, "56.00", o.Total.StringFixed(2))
	assert.Equal(t, "-4.00", o.LineItems[0].PromoTotal.StringFixed(2))
	assert.True(t, o.LineItems[1].PromoTotal.IsZero())
	assert.Equal(t, "-5.00", o.Shipments[0].AdjustmentTotal.StringFixed(2))
}

func TestDiscountableAmountNeverNegative(t *testing.T) {
	li := &LineItem{ID: 1, Quantity: 1, Price: dec("10")}
	li.AddDiscount(ItemDiscount{Amount: dec("-6")})
	assert.Equal(t, "4.00", li.DiscountableAmount().StringFixed(2))

	li.AddDiscount(ItemDiscount{Amount: dec("-6")})
	assert.True(t, li.DiscountableAmount().IsZero())

	li.ResetDiscounts()
	assert.Equal(t, "10.00", li.DiscountableAmount().StringFixed(2))
}

func TestOrderStates(t *testing.T) {
	o := &Order{State: StateCart}
	assert.False(t, o.CheckoutStarted())

	o.State = StateComplete
	assert.True(t, o.CheckoutStarted())
	assert.True(t, o.Completed())

	o.State = StateCanceled
	assert.True(t, o.Finalized())
	assert.False(t, o.CheckoutStarted())

	o.State = StatePayment
	o.RestartCheckout()
	assert.Equal(t, StateCart, o.State)
	assert.Nil(t, o.CompletedAt)

	assert.False(t, State("bogus").Valid())
}

func TestFindDiscountable(t *testing.T) {
	o := &Order{
		LineItems: []*LineItem{{ID: 1}},
		Shipments: []*Shipment{{ID: 2}},
	}
	o.LinkChildren()

	assert.Equal(t, o, o.FindDiscountable(KindLineItem, 1).OwningOrder())
	assert.NotNil(t, o.FindDiscountable(KindShipment, 2))
	assert.Nil(t, o.FindDiscountable(KindShipment, 1))
	assert.Len(t, o.Discountables(), 2)
}
