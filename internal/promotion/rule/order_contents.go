package rule

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/shopspring/decimal"
)

// ItemTotal requires the undiscounted line item total to pass a threshold.
type ItemTotal struct {
	Amount   decimal.Decimal `json:"amount"`
	Operator string          `json:"operator"`
}

func (r *ItemTotal) Type() string { return TypeItemTotal }

func (r *ItemTotal) validate() error {
	switch r.Operator {
	case "":
		r.Operator = "gt"
	case "gt", "gte":
	default:
		return fmt.Errorf("unsupported operator %q", r.Operator)
	}
	if r.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	return nil
}

func (r *ItemTotal) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *ItemTotal) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	total := decimal.Zero
	for _, li := range p.OwningOrder().LineItems {
		total = total.Add(li.Amount())
	}
	switch r.Operator {
	case "gte":
		if total.LessThan(r.Amount) {
			return fail("item_total_less_than", fmt.Sprintf("This coupon code can't be applied to orders less than %s.", r.Amount.StringFixed(2))), nil
		}
	default:
		if total.LessThanOrEqual(r.Amount) {
			return fail("item_total_less_than_or_equal", fmt.Sprintf("This coupon code can't be applied to orders less than or equal to %s.", r.Amount.StringFixed(2))), nil
		}
	}
	return nil, nil
}

const (
	ProductMatchAny  = "any"
	ProductMatchAll  = "all"
	ProductMatchNone = "none"
)

// Product matches orders by the products they contain.
type Product struct {
	ProductIDs  []snowflake.ID `json:"product_ids"`
	MatchPolicy string         `json:"match_policy"`
}

func (r *Product) Type() string { return TypeProduct }

func (r *Product) validate() error {
	switch r.MatchPolicy {
	case "":
		r.MatchPolicy = ProductMatchAny
	case ProductMatchAny, ProductMatchAll, ProductMatchNone:
	default:
		return fmt.Errorf("unsupported match_policy %q", r.MatchPolicy)
	}
	return nil
}

func (r *Product) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *Product) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	inOrder := map[snowflake.ID]bool{}
	for _, li := range p.OwningOrder().LineItems {
		inOrder[li.ProductID] = true
	}

	switch r.MatchPolicy {
	case ProductMatchAll:
		for _, id := range r.ProductIDs {
			if !inOrder[id] {
				return fail("missing_product", "This coupon code can't be applied because you don't have all of the necessary products in your cart."), nil
			}
		}
	case ProductMatchNone:
		for _, id := range r.ProductIDs {
			if inOrder[id] {
				return fail("has_excluded_product", "Your cart contains a product that prevents this coupon code from being applied."), nil
			}
		}
	default:
		for _, id := range r.ProductIDs {
			if inOrder[id] {
				return nil, nil
			}
		}
		return fail("no_applicable_products", "You need to add an applicable product before applying this coupon code."), nil
	}
	return nil, nil
}

// LineItemProduct gates individual line items by product.
type LineItemProduct struct {
	ProductIDs []snowflake.ID `json:"product_ids"`
	Exclude    bool           `json:"exclude"`
}

func (r *LineItemProduct) Type() string { return TypeLineItemProduct }

func (r *LineItemProduct) Applicable(p orderdomain.Promotable) bool {
	return p.Kind() == orderdomain.KindLineItem
}

func (r *LineItemProduct) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	li, ok := p.(*orderdomain.LineItem)
	if !ok {
		return nil, nil
	}
	listed := containsID(r.ProductIDs, li.ProductID)
	if r.Exclude && listed {
		return fail("product_excluded", "This product is excluded from the promotion."), nil
	}
	if !r.Exclude && !listed {
		return fail("product_not_applicable", "This product is not part of the promotion."), nil
	}
	return nil, nil
}

// MinimumQuantity requires a total quantity across the order's line items.
type MinimumQuantity struct {
	MinimumQuantity int `json:"minimum_quantity"`
}

func (r *MinimumQuantity) Type() string { return TypeMinimumQuantity }

func (r *MinimumQuantity) validate() error {
	if r.MinimumQuantity < 1 {
		return errors.New("minimum_quantity must be at least 1")
	}
	return nil
}

func (r *MinimumQuantity) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *MinimumQuantity) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	quantity := 0
	for _, li := range p.OwningOrder().LineItems {
		quantity += li.Quantity
	}
	if quantity < r.MinimumQuantity {
		return fail("quantity_less_than_minimum", fmt.Sprintf("You need to add at least %d items to your cart.", r.MinimumQuantity)), nil
	}
	return nil, nil
}

// Store limits the promotion to orders placed in specific stores.
type Store struct {
	StoreIDs []snowflake.ID `json:"store_ids"`
}

func (r *Store) Type() string { return TypeStore }

func (r *Store) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *Store) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	order := p.OwningOrder()
	if len(r.StoreIDs) == 0 {
		return nil, nil
	}
	if order.StoreID == nil || !containsID(r.StoreIDs, *order.StoreID) {
		return fail("wrong_store", "This coupon code is not valid in this store."), nil
	}
	return nil, nil
}

// ShippingMethod gates shipments by their shipping method.
type ShippingMethod struct {
	ShippingMethodIDs []snowflake.ID `json:"shipping_method_ids"`
}

func (r *ShippingMethod) Type() string { return TypeShippingMethod }

func (r *ShippingMethod) Applicable(p orderdomain.Promotable) bool {
	return p.Kind() == orderdomain.KindShipment
}

func (r *ShippingMethod) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	s, ok := p.(*orderdomain.Shipment)
	if !ok {
		return nil, nil
	}
	if !containsID(r.ShippingMethodIDs, s.ShippingMethodID) {
		return fail("wrong_shipping_method", "This shipping method is not eligible for the promotion."), nil
	}
	return nil, nil
}
