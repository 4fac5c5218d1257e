package action

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/jarednorman/solidus-friendly-promotions/internal/order/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/calculator"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/shopspring/decimal"
)

const (
	TypeAdjustLineItem = "adjust_line_item"
	TypeAdjustShipment = "adjust_shipment"
)

// ErrNotImplemented is raised by Base methods every variant must override.
var ErrNotImplemented = errors.New("not_implemented")

// Level orders action application; line items are discounted before shipments.
type Level int

const (
	LevelLineItem Level = iota
	LevelShipment
)

func (l Level) String() string {
	switch l {
	case LevelLineItem:
		return "line_item"
	case LevelShipment:
		return "shipment"
	default:
		return "unknown"
	}
}

type Action interface {
	ID() snowflake.ID
	Type() string
	Promotion() *domain.Promotion
	Record() *domain.PromotionAction
	Level() Level
	CanDiscount(item orderdomain.Discountable) bool
	Discount(item orderdomain.Discountable) *Discount
}

// Discount is a computed, not yet persisted, discount on one item.
// Amount is negative.
type Discount struct {
	Item   orderdomain.Discountable
	Label  string
	Source Action
	Amount decimal.Decimal
}

func (d Discount) Equal(other Discount) bool {
	return d.Item == other.Item &&
		d.Label == other.Label &&
		sourceID(d.Source) == sourceID(other.Source) &&
		d.Amount.Equal(other.Amount)
}

// ItemDiscount converts the discount into the item's running discount list.
func (d Discount) ItemDiscount(codeID *snowflake.ID) orderdomain.ItemDiscount {
	out := orderdomain.ItemDiscount{
		Label:           d.Label,
		Amount:          d.Amount,
		PromotionCodeID: codeID,
	}
	if d.Source != nil {
		out.SourceID = d.Source.ID()
		if promo := d.Source.Promotion(); promo != nil {
			out.PromotionID = promo.ID
		}
	}
	return out
}

func sourceID(a Action) snowflake.ID {
	if a == nil {
		return 0
	}
	return a.ID()
}

// New builds an action and its calculator from the stored record.
func New(record *domain.PromotionAction, promo *domain.Promotion) (Action, error) {
	calc, err := calculator.New(record.CalculatorType, record.CalculatorPreferences)
	if err != nil {
		return nil, fmt.Errorf("%w: action %d: %v", domain.ErrInvalidPreferences, record.ID, err)
	}
	base := NewBase(record, promo, calc)
	switch record.Type {
	case TypeAdjustLineItem:
		return &AdjustLineItem{Base: base}, nil
	case TypeAdjustShipment:
		return &AdjustShipment{Base: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidActionType, record.Type)
	}
}

func Types() []string {
	return []string{TypeAdjustLineItem, TypeAdjustShipment}
}
