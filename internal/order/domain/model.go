package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateCart     State = "cart"
	StateAddress  State = "address"
	StateDelivery State = "delivery"
	StatePayment  State = "payment"
	StateConfirm  State = "confirm"
	StateComplete State = "complete"
	StateCanceled State = "canceled"
	StateReturned State = "returned"
)

func (s State) Valid() bool {
	switch s {
	case StateCart, StateAddress, StateDelivery, StatePayment, StateConfirm,
		StateComplete, StateCanceled, StateReturned:
		return true
	}
	return false
}

// Order is the host platform's order as seen by the promotion engine.
// Children are loaded explicitly by the repository.
type Order struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	Number      string        `gorm:"type:text;not null;uniqueIndex" json:"number"`
	UserID      *snowflake.ID `gorm:"index" json:"user_id,omitempty"`
	Email       string        `gorm:"type:text" json:"email"`
	StoreID     *snowflake.ID `gorm:"index" json:"store_id,omitempty"`
	State       State         `gorm:"type:text;not null;default:cart" json:"state"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`

	ItemTotal       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"item_total"`
	ShipmentTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipment_total"`
	PromoTotal      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"promo_total"`
	AdjustmentTotal decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"adjustment_total"`
	Total           decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"total"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	LineItems   []*LineItem   `gorm:"-" json:"line_items"`
	Shipments   []*Shipment   `gorm:"-" json:"shipments"`
	Adjustments []*Adjustment `gorm:"-" json:"adjustments"`
}

func (Order) TableName() string { return "orders" }

type LineItem struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID         snowflake.ID    `gorm:"not null;index" json:"order_id"`
	ProductID       snowflake.ID    `gorm:"not null" json:"product_id"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	PromoTotal      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"promo_total"`
	AdjustmentTotal decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"adjustment_total"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`

	CurrentDiscounts []ItemDiscount `gorm:"-" json:"-"`
	Order            *Order         `gorm:"-" json:"-"`
}

func (LineItem) TableName() string { return "line_items" }

type Shipment struct {
	ID               snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID          snowflake.ID    `gorm:"not null;index" json:"order_id"`
	ShippingMethodID snowflake.ID    `gorm:"not null" json:"shipping_method_id"`
	Cost             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"cost"`
	PromoTotal       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"promo_total"`
	AdjustmentTotal  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"adjustment_total"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`

	CurrentDiscounts []ItemDiscount `gorm:"-" json:"-"`
	Order            *Order         `gorm:"-" json:"-"`
}

func (Shipment) TableName() string { return "shipments" }

const SourceTypePromotionAction = "promotion_action"

// Adjustment is a persisted discount against a line item or shipment.
// Only eligible adjustments count toward totals and promotion usage.
type Adjustment struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID         snowflake.ID    `gorm:"not null;index" json:"order_id"`
	AdjustableType  Kind            `gorm:"type:text;not null" json:"adjustable_type"`
	AdjustableID    snowflake.ID    `gorm:"not null" json:"adjustable_id"`
	SourceType      string          `gorm:"type:text;not null" json:"source_type"`
	SourceID        snowflake.ID    `gorm:"not null;index" json:"source_id"`
	PromotionCodeID *snowflake.ID   `gorm:"index" json:"promotion_code_id,omitempty"`
	Label           string          `gorm:"type:text;not null" json:"label"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Eligible        bool            `gorm:"not null" json:"eligible"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Adjustment) TableName() string { return "adjustments" }

// ItemDiscount is a discount computed during the current pass, not yet persisted.
type ItemDiscount struct {
	SourceID        snowflake.ID
	PromotionID     snowflake.ID
	PromotionCodeID *snowflake.ID
	Label           string
	Amount          decimal.Decimal
}
