package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
)

const (
	TypeUserLoggedIn    = "user_logged_in"
	TypeUser            = "user"
	TypeFirstOrder      = "first_order"
	TypeNthOrder        = "nth_order"
	TypeOneUsePerUser   = "one_use_per_user"
	TypeItemTotal       = "item_total"
	TypeProduct         = "product"
	TypeLineItemProduct = "line_item_product"
	TypeMinimumQuantity = "minimum_quantity"
	TypeStore           = "store"
	TypeShippingMethod  = "shipping_method"
	TypeExpression      = "expression"
)

// Lookup answers the history questions some rules need.
type Lookup interface {
	CompletedOrderCount(ctx context.Context, userID, excludeOrderID snowflake.ID) (int64, error)
	UsedBy(ctx context.Context, promotionID, userID snowflake.ID, excludedOrderIDs []snowflake.ID) (bool, error)
}

type Options struct {
	PromotionID snowflake.ID
	Now         time.Time
	Lookup      Lookup
}

// Rule is an eligibility predicate over a promotable.
// Eligible returns a fresh error list on every call; an empty list means eligible.
// The error return is reserved for lookup failures.
type Rule interface {
	Type() string
	Applicable(p orderdomain.Promotable) bool
	Eligible(ctx context.Context, p orderdomain.Promotable, opts Options) (domain.EligibilityErrors, error)
}

type factory func() Rule

var registry = map[string]factory{
	TypeUserLoggedIn:    func() Rule { return &UserLoggedIn{} },
	TypeUser:            func() Rule { return &User{} },
	TypeFirstOrder:      func() Rule { return &FirstOrder{} },
	TypeNthOrder:        func() Rule { return &NthOrder{} },
	TypeOneUsePerUser:   func() Rule { return &OneUsePerUser{} },
	TypeItemTotal:       func() Rule { return &ItemTotal{} },
	TypeProduct:         func() Rule { return &Product{} },
	TypeLineItemProduct: func() Rule { return &LineItemProduct{} },
	TypeMinimumQuantity: func() Rule { return &MinimumQuantity{} },
	TypeStore:           func() Rule { return &Store{} },
	TypeShippingMethod:  func() Rule { return &ShippingMethod{} },
	TypeExpression:      func() Rule { return &Expression{} },
}

type validator interface {
	validate() error
}

// New builds a rule from its stored record.
func New(record *domain.PromotionRule) (Rule, error) {
	build, ok := registry[record.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRuleType, record.Type)
	}
	r := build()
	if len(record.Preferences) > 0 && string(record.Preferences) != "null" {
		if err := json.Unmarshal(record.Preferences, r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPreferences, record.Type, err)
		}
	}
	if v, ok := r.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPreferences, record.Type, err)
		}
	}
	return r, nil
}

func Types() []string {
	out := make([]string, 0, len(registry))
	for typ := range registry {
		out = append(out, typ)
	}
	return out
}

func fail(code, message string) domain.EligibilityErrors {
	return domain.EligibilityErrors{{Code: code, Message: message}}
}

func isOrder(p orderdomain.Promotable) bool { return p.Kind() == orderdomain.KindOrder }

func containsID(ids []snowflake.ID, id snowflake.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
