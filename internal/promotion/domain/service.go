package domain

import (
	"context"
	"encoding/json"
	"time"
)

type CreatePromotionRequest struct {
	Name               string      `json:"name"`
	Description        *string     `json:"description,omitempty"`
	CustomerLabel      string      `json:"customer_label"`
	Path               *string     `json:"path,omitempty"`
	CategoryID         string      `json:"category_id,omitempty"`
	Lane               Lane        `json:"lane,omitempty"`
	MatchPolicy        MatchPolicy `json:"match_policy,omitempty"`
	UsageLimit         *int        `json:"usage_limit,omitempty"`
	PerCodeUsageLimit  *int        `json:"per_code_usage_limit,omitempty"`
	StartsAt           *time.Time  `json:"starts_at,omitempty"`
	ExpiresAt          *time.Time  `json:"expires_at,omitempty"`
	ApplyAutomatically bool        `json:"apply_automatically"`
	Advertise          bool        `json:"advertise"`
}

type ListPromotionRequest struct {
	Advertised bool
	Coupons    bool
	HasActions bool
	ActiveAt   *time.Time
	Automatic  *bool
	CategoryID string
	Limit      int
	Offset     int
}

type AddRuleRequest struct {
	PromotionID string          `json:"-"`
	Type        string          `json:"type"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

type AddActionRequest struct {
	PromotionID           string          `json:"-"`
	Type                  string          `json:"type"`
	CalculatorType        string          `json:"calculator_type"`
	CalculatorPreferences json.RawMessage `json:"calculator_preferences,omitempty"`
}

type AddCodesRequest struct {
	PromotionID string   `json:"-"`
	Values      []string `json:"values"`
}

type CreateCodeBatchRequest struct {
	PromotionID    string `json:"-"`
	BaseCode       string `json:"base_code"`
	NumberOfCodes  int    `json:"number_of_codes"`
	JoinCharacters string `json:"join_characters,omitempty"`
}

type Usage struct {
	PromotionID        string `json:"promotion_id"`
	UsageCount         int64  `json:"usage_count"`
	UsageLimit         *int   `json:"usage_limit,omitempty"`
	UsageLimitExceeded bool   `json:"usage_limit_exceeded"`
}

type Service interface {
	Create(ctx context.Context, req CreatePromotionRequest) (*Promotion, error)
	Get(ctx context.Context, id string) (*Promotion, error)
	List(ctx context.Context, req ListPromotionRequest) ([]*Promotion, error)
	Advertised(ctx context.Context) ([]*Promotion, error)
	Destroy(ctx context.Context, id string) error

	AddRule(ctx context.Context, req AddRuleRequest) (*PromotionRule, error)
	RemoveRule(ctx context.Context, promotionID, ruleID string) error
	AddAction(ctx context.Context, req AddActionRequest) (*PromotionAction, error)
	RemoveAction(ctx context.Context, promotionID, actionID string) error
	AddCodes(ctx context.Context, req AddCodesRequest) ([]*PromotionCode, error)
	CreateCodeBatch(ctx context.Context, req CreateCodeBatchRequest) (*PromotionCodeBatch, error)

	Usage(ctx context.Context, id string) (Usage, error)
	Eligibility(ctx context.Context, promotionID, orderID string) (Eligibility, error)
}
