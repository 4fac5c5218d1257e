package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Lane string

const (
	LanePre     Lane = "pre"
	LaneDefault Lane = "default"
	LanePost    Lane = "post"
)

// OrderedLanes is the fixed application order of lanes.
func OrderedLanes() map[Lane]int {
	return map[Lane]int{LanePre: 0, LaneDefault: 1, LanePost: 2}
}

// LaneOrder returns the lanes sorted by application order.
func LaneOrder() []Lane {
	return []Lane{LanePre, LaneDefault, LanePost}
}

func (l Lane) Valid() bool {
	_, ok := OrderedLanes()[l]
	return ok
}

type MatchPolicy string

const (
	MatchAll MatchPolicy = "all"
	MatchAny MatchPolicy = "any"
)

func (m MatchPolicy) Valid() bool {
	return m == MatchAll || m == MatchAny
}

type Promotion struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name                string        `gorm:"type:text;not null" json:"name"`
	Description         *string       `gorm:"type:text" json:"description,omitempty"`
	CustomerLabel       string        `gorm:"type:text;not null" json:"customer_label"`
	Path                *string       `gorm:"type:text;uniqueIndex" json:"path,omitempty"`
	CategoryID          *snowflake.ID `gorm:"index" json:"category_id,omitempty"`
	Lane                Lane          `gorm:"type:text;not null" json:"lane"`
	MatchPolicy         MatchPolicy   `gorm:"type:text;not null" json:"match_policy"`
	UsageLimit          *int          `gorm:"column:usage_limit" json:"usage_limit,omitempty"`
	PerCodeUsageLimit   *int          `gorm:"column:per_code_usage_limit" json:"per_code_usage_limit,omitempty"`
	StartsAt            *time.Time    `gorm:"index" json:"starts_at,omitempty"`
	ExpiresAt           *time.Time    `gorm:"index" json:"expires_at,omitempty"`
	ApplyAutomatically  bool          `gorm:"not null;index" json:"apply_automatically"`
	Advertise           bool          `gorm:"not null" json:"advertise"`
	OriginalPromotionID *snowflake.ID `gorm:"column:original_promotion_id" json:"original_promotion_id,omitempty"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null" json:"updated_at"`

	Rules   []*PromotionRule   `gorm:"-" json:"rules"`
	Actions []*PromotionAction `gorm:"-" json:"actions"`
}

func (Promotion) TableName() string { return "promotions" }

type PromotionCategory struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Code      string       `gorm:"type:text;uniqueIndex" json:"code"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (PromotionCategory) TableName() string { return "promotion_categories" }

// PromotionRule is the stored form of an eligibility rule.
type PromotionRule struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	PromotionID snowflake.ID   `gorm:"not null;index" json:"promotion_id"`
	Type        string         `gorm:"type:text;not null" json:"type"`
	Preferences datatypes.JSON `gorm:"type:json" json:"preferences"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (PromotionRule) TableName() string { return "promotion_rules" }

// PromotionAction is the stored form of an action and its calculator.
// PromotionID is nulled when the owning promotion is destroyed so past
// adjustments keep a valid source.
type PromotionAction struct {
	ID                    snowflake.ID   `gorm:"primaryKey" json:"id"`
	PromotionID           *snowflake.ID  `gorm:"index" json:"promotion_id,omitempty"`
	Type                  string         `gorm:"type:text;not null" json:"type"`
	CalculatorType        string         `gorm:"type:text;not null" json:"calculator_type"`
	CalculatorPreferences datatypes.JSON `gorm:"type:json" json:"calculator_preferences"`
	OriginalActionID      *snowflake.ID  `gorm:"column:original_action_id" json:"original_action_id,omitempty"`
	CreatedAt             time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null" json:"updated_at"`
}

func (PromotionAction) TableName() string { return "promotion_actions" }

type PromotionCode struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	PromotionID snowflake.ID  `gorm:"not null;index" json:"promotion_id"`
	Value       string        `gorm:"type:text;not null;uniqueIndex" json:"value"`
	BatchID     *snowflake.ID `gorm:"index" json:"batch_id,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
}

func (PromotionCode) TableName() string { return "promotion_codes" }

type CodeBatchState string

const (
	CodeBatchPending   CodeBatchState = "pending"
	CodeBatchCompleted CodeBatchState = "completed"
	CodeBatchFailed    CodeBatchState = "failed"
)

// PromotionCodeBatch generates NumberOfCodes codes of the form <base><join><random>.
type PromotionCodeBatch struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	PromotionID    snowflake.ID   `gorm:"not null;index" json:"promotion_id"`
	BaseCode       string         `gorm:"type:text;not null" json:"base_code"`
	NumberOfCodes  int            `gorm:"not null" json:"number_of_codes"`
	JoinCharacters string         `gorm:"type:text;not null" json:"join_characters"`
	State          CodeBatchState `gorm:"type:text;not null" json:"state"`
	Error          *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (PromotionCodeBatch) TableName() string { return "promotion_code_batches" }

// OrderPromotion connects an order to a promotion, optionally through a code.
type OrderPromotion struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrderID         snowflake.ID  `gorm:"not null;index" json:"order_id"`
	PromotionID     snowflake.ID  `gorm:"not null;index" json:"promotion_id"`
	PromotionCodeID *snowflake.ID `gorm:"index" json:"promotion_code_id,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
}

func (OrderPromotion) TableName() string { return "order_promotions" }
