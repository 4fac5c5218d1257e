package rule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

// Expression evaluates a JSONLogic expression against order facts:
// item_total, quantity, line_item_count, shipment_total, product_ids,
// user_id, store_id, email and state.
type Expression struct {
	Logic json.RawMessage `json:"logic"`
}

func (r *Expression) Type() string { return TypeExpression }

func (r *Expression) validate() error {
	if len(r.Logic) == 0 {
		return errors.New("logic is required")
	}
	if !jsonlogic.IsValid(bytes.NewReader(r.Logic)) {
		return errors.New("logic is not a valid JSONLogic expression")
	}
	return nil
}

func (r *Expression) Applicable(p orderdomain.Promotable) bool { return isOrder(p) }

func (r *Expression) Eligible(_ context.Context, p orderdomain.Promotable, _ Options) (domain.EligibilityErrors, error) {
	facts, err := json.Marshal(orderFacts(p.OwningOrder()))
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(r.Logic), bytes.NewReader(facts), &out); err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}

	var result interface{}
	if out.Len() > 0 {
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			return nil, fmt.Errorf("decode expression result: %w", err)
		}
	}
	if !truthy(result) {
		return fail("expression_not_satisfied", "This coupon code can't be applied to your order."), nil
	}
	return nil, nil
}

func orderFacts(order *orderdomain.Order) map[string]interface{} {
	itemTotal, _ := order.ItemTotal.Float64()
	quantity := 0
	total := 0.0
	productIDs := make([]string, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		amount, _ := li.Amount().Float64()
		total += amount
		quantity += li.Quantity
		productIDs = append(productIDs, li.ProductID.String())
	}
	if len(order.LineItems) > 0 {
		itemTotal = total
	}
	shipmentTotal := 0.0
	for _, s := range order.Shipments {
		cost, _ := s.Cost.Float64()
		shipmentTotal += cost
	}

	facts := map[string]interface{}{
		"item_total":      itemTotal,
		"quantity":        quantity,
		"line_item_count": len(order.LineItems),
		"shipment_total":  shipmentTotal,
		"product_ids":     productIDs,
		"email":           order.Email,
		"state":           string(order.State),
		"user_id":         nil,
		"store_id":        nil,
	}
	if order.UserID != nil {
		facts["user_id"] = order.UserID.String()
	}
	if order.StoreID != nil {
		facts["store_id"] = order.StoreID.String()
	}
	return facts
}

// truthy follows JSONLogic truthiness.
func truthy(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != ""
	case []interface{}:
		return len(value) > 0
	default:
		return true
	}
}
