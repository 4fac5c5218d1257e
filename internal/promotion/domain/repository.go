package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter combines the scoped queries. Zero values disable a scope.
type ListFilter struct {
	Advertised bool
	Coupons    bool
	HasActions bool
	// ActiveAt keeps promotions whose window covers the time and that have actions.
	ActiveAt   *time.Time
	Automatic  *bool
	CategoryID *snowflake.ID
	Limit      int
	Offset     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, promo *Promotion) error
	Update(ctx context.Context, db *gorm.DB, promo *Promotion) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Promotion, error)
	// Load returns the promotion with its rules and attached actions, or nil.
	Load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Promotion, error)
	LoadMany(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Promotion, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Promotion, error)
	ActiveAutomaticIDs(ctx context.Context, db *gorm.DB, at time.Time) ([]snowflake.ID, error)
	Destroy(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertRule(ctx context.Context, db *gorm.DB, rule *PromotionRule) error
	DeleteRule(ctx context.Context, db *gorm.DB, promotionID, ruleID snowflake.ID) error
	InsertAction(ctx context.Context, db *gorm.DB, action *PromotionAction) error
	FindAction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PromotionAction, error)
	DeleteAction(ctx context.Context, db *gorm.DB, promotionID, actionID snowflake.ID) ([]snowflake.ID, error)
	InsertCategory(ctx context.Context, db *gorm.DB, category *PromotionCategory) error

	InsertCodes(ctx context.Context, db *gorm.DB, codes []*PromotionCode) error
	FindCode(ctx context.Context, db *gorm.DB, value string) (*PromotionCode, error)
	FindCodeByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PromotionCode, error)
	InsertCodeBatch(ctx context.Context, db *gorm.DB, batch *PromotionCodeBatch) error
	UpdateCodeBatch(ctx context.Context, db *gorm.DB, batch *PromotionCodeBatch) error

	OrderPromotions(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderPromotion, error)
	InsertOrderPromotion(ctx context.Context, db *gorm.DB, op *OrderPromotion) error
	DeleteOrderPromotions(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error

	// Usage counts distinct completed orders, other than excludedOrderIDs, holding an
	// eligible adjustment from one of the promotion's attached actions.
	UsageCount(ctx context.Context, db *gorm.DB, promotionID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error)
	CodeUsageCount(ctx context.Context, db *gorm.DB, codeID snowflake.ID, excludedOrderIDs []snowflake.ID) (int64, error)
	UsedBy(ctx context.Context, db *gorm.DB, promotionID, userID snowflake.ID, excludedOrderIDs []snowflake.ID) (bool, error)
}
