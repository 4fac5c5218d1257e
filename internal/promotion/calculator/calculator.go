package calculator

import (
	"encoding/json"
	"errors"
	"fmt"

	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/shopspring/decimal"
)

const (
	TypePercent           = "percent"
	TypeFlatRate          = "flat_rate"
	TypeFlexiRate         = "flexi_rate"
	TypeTieredPercent     = "tiered_percent"
	TypeTieredFlatRate    = "tiered_flat_rate"
	TypeDistributedAmount = "distributed_amount"
	TypeFreeShipping      = "free_shipping"
)

var (
	ErrUnknownType     = errors.New("unknown_calculator_type")
	ErrInvalidPercent  = errors.New("invalid_percent")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidTiers    = errors.New("invalid_tiers")
	ErrInvalidMaxItems = errors.New("invalid_max_items")
)

var hundred = decimal.NewFromInt(100)

// Calculator computes a positive discount amount for an item.
// A nil result means the calculator does not apply; it is never zero.
type Calculator interface {
	Type() string
	Compute(item orderdomain.Discountable) *decimal.Decimal
}

type configurable interface {
	Calculator
	validate() error
}

// Types lists every registered calculator type.
func Types() []string {
	return []string{
		TypePercent,
		TypeFlatRate,
		TypeFlexiRate,
		TypeTieredPercent,
		TypeTieredFlatRate,
		TypeDistributedAmount,
		TypeFreeShipping,
	}
}

// New builds and validates a calculator from its stored type and preferences.
func New(typ string, preferences []byte) (Calculator, error) {
	var calc configurable
	switch typ {
	case TypePercent:
		calc = &Percent{}
	case TypeFlatRate:
		calc = &FlatRate{}
	case TypeFlexiRate:
		calc = &FlexiRate{}
	case TypeTieredPercent:
		calc = &TieredPercent{}
	case TypeTieredFlatRate:
		calc = &TieredFlatRate{}
	case TypeDistributedAmount:
		calc = &DistributedAmount{}
	case TypeFreeShipping:
		calc = &FreeShipping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if len(preferences) > 0 && string(preferences) != "null" {
		if err := json.Unmarshal(preferences, calc); err != nil {
			return nil, fmt.Errorf("decode %s preferences: %w", typ, err)
		}
	}
	if err := calc.validate(); err != nil {
		return nil, err
	}
	return calc, nil
}

// clamp keeps amount within (0, limit]; zero or negative results become nil.
func clamp(amount, limit decimal.Decimal) *decimal.Decimal {
	if amount.GreaterThan(limit) {
		amount = limit
	}
	if !amount.IsPositive() {
		return nil
	}
	return &amount
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
